package core

import "context"

// Scope selects the prospects a run processes. IDs refer to stored prospects;
// Companies are seeded (or re-used when their prospect already exists).
type Scope struct {
	IDs       []string
	Companies []Company
}

// Pipeline coordinates prospect runs and event emission.
//
// A concrete implementation is responsible for:
//   - Driving each requested prospect through the fixed chain
//   - Streaming progress to subscribers of the run
//   - Reporting exactly one Outcome per requested prospect
//
// Implementations SHOULD:
//   - Preserve stage order per prospect and isolate per-prospect failures
//   - Propagate context cancellation to in-flight stages
//   - Close returned channels when a run terminates
type Pipeline interface {
	// RunPipeline starts an asynchronous run returning the outcome stream and
	// a terminal error channel (buffered size 1).
	//
	// Returns:
	//   - runID: unique identifier for this run (for cancellation / subscription)
	//   - outcomesCh: one outcome per requested prospect
	//   - errorsCh: terminal error channel (engine faults)
	//   - err: immediate error starting the run
	RunPipeline(ctx context.Context, scope Scope) (string, <-chan Outcome, <-chan error, error)

	// RunPipelineSync executes a run to completion, collecting all outcomes.
	RunPipelineSync(ctx context.Context, scope Scope) (string, []Outcome, error)

	// Cancel stops a running run.
	Cancel(runID string) error
}
