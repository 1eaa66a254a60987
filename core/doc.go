// Package core provides the foundational domain types, interfaces and execution
// contexts used by prospectmesh. It defines the core abstractions for:
//
//   - Prospects (the unit of work, its stages, facts, drafts and outcomes)
//   - Events (immutable records streamed to run subscribers)
//   - AgentContext (the read-only handles a stage agent may use)
//   - The error taxonomy (AgentError, EngineFault, TransientError, RemoteError)
//   - Pluggable collaborators and stores (search, email, calendar, prospects)
//
// The package intentionally keeps implementation concerns (persistence, engine
// orchestration, concrete agents) out of scope, exposing small interfaces to
// enable custom backends and extensions.
package core
