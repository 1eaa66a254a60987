// Package model defines the provider‑agnostic abstractions and concrete
// helpers for text generation and embeddings inside prospectmesh.
//
// Core goals:
//   - Stream generation as text fragments behind a single Generator interface
//   - Keep request/fragment shapes minimal and transport independent
//   - Offer an Embedder interface for the similarity index
//   - Facilitate lightweight mocking for tests (MockGenerator, HashEmbedder)
//
// Providers (OpenAI, Anthropic, Gemini, Ollama) implement Generator in their
// own sub packages so the agents stay decoupled from vendor SDKs.
package model
