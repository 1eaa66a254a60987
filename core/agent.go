package core

import (
	"context"
	"time"

	"github.com/hupe1980/prospectmesh/logging"
	"github.com/hupe1980/prospectmesh/model"
)

// AgentFunc is a single stage of the chain. It receives a private copy of the
// prospect and returns the next version or an error (preferably *AgentError).
// Agents never talk to each other; everything flows through the prospect.
type AgentFunc func(ctx context.Context, ac *AgentContext, in Prospect) (Prospect, error)

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// AgentContext carries the read-only handles a stage may use. It aggregates:
//   - Identifiers (RunID) for event correlation
//   - Shared engines (vector index, compliance gate)
//   - External collaborators (search, email, calendar, directory, handoffs)
//   - Generation (generator, embedder, per-run limiter)
//   - The event emitter, clock and logger
//
// Any collaborator may be nil; agents degrade or fail as documented for their
// stage. The context is shared between concurrent prospects and must not be
// mutated by agents.
type AgentContext struct {
	RunID      string
	Index      VectorIndex
	Compliance ComplianceGate
	Search     Search
	Email      Email
	Calendar   Calendar
	Directory  Directory
	Handoffs   HandoffStore
	Proposals  ProposalStore
	Generator  model.Generator
	Embedder   model.Embedder
	Emitter    Emitter
	Limiter    *GenerationLimiter
	Clock      Clock

	*loggerAdapter
}

// NewAgentContext constructs an AgentContext bound to a run with a system
// clock and the given logger.
func NewAgentContext(runID string, logger logging.Logger) *AgentContext {
	return &AgentContext{
		RunID:         runID,
		Clock:         func() time.Time { return time.Now().UTC() },
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Now returns the context clock reading.
func (ac *AgentContext) Now() time.Time {
	if ac.Clock == nil {
		return time.Now().UTC()
	}
	return ac.Clock()
}

// Emit publishes ev to the run subscribers. Emission failures never fail a
// stage; they are logged.
func (ac *AgentContext) Emit(ctx context.Context, ev Event) {
	if ac.Emitter == nil {
		return
	}
	if err := ac.Emitter.Emit(ctx, ac.RunID, ev); err != nil {
		ac.LogDebug("event dropped run_id=%s kind=%s: %v", ac.RunID, ev.Kind, err)
	}
}

// WithRun returns a shallow copy bound to another run id.
func (ac *AgentContext) WithRun(runID string) *AgentContext {
	c := *ac
	c.RunID = runID
	return &c
}

// WithLogger returns a shallow copy using logger.
func (ac *AgentContext) WithLogger(logger logging.Logger) *AgentContext {
	c := *ac
	c.loggerAdapter = newLoggerAdapter(logger)
	return &c
}
