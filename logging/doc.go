// Package logging provides a minimal logging interface and adapters for prospectmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine and agents use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - PipelineLogger on log/slog with run / prospect scoping and stage, RPC and LLM helpers
//   - ZapAdapter for hosts that already standardized on zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
//
// Messages are printf style; adapters format them before handing them to the
// backend.
package logging
