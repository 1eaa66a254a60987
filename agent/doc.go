// Package agent implements the eight stages of the outreach chain.
//
// Every stage is a core.AgentFunc: it receives a private copy of the
// prospect, may consult the handles carried by *core.AgentContext, and
// returns the next version of the prospect or an error. Agents never call
// each other. The chain topology is fixed:
//
//	Hunter → Enricher → Contactor → Scorer → Writer → Compliance → Sequencer → Curator
//
// Chain maps each core.Stage to its function. The engine package drives the
// chain, commits each returned prospect and advances its stage.
//
// Failures are reported as *core.AgentError. Retryable errors (timeouts,
// transient collaborator failures) are retried by the engine; terminal ones
// fail only the prospect. Failures of shared infrastructure (vector index,
// stores) are returned as *core.EngineFault and abort the batch.
package agent
