// Package engine implements the pipeline orchestrator.
//
// The Engine drives every prospect of a run through the fixed agent chain
// (Hunter, Enricher, Contactor, Scorer, Writer, Compliance, Sequencer,
// Curator) and reports exactly one outcome per prospect:
//
//	completed                 handoff packet ready for a seller
//	blocked(reason)           compliance or qualification said no
//	failed(stage, reason)     a stage gave up or the run ended early
//
// # Execution model
//
// Prospects run concurrently on a bounded errgroup pool (Config.Parallelism);
// the stages of one prospect run strictly in order. Each stage receives a
// private copy of the prospect; its result is committed (stage advanced,
// state persisted) before the next stage starts, so a later run resumes at
// the first stage that has not completed.
//
// A prospect is owned by one run at a time. A second run requesting it waits
// until the owner releases it.
//
// # Errors
//
// Retryable agent errors are retried up to Config.MaxStageRetries with
// exponential backoff and jitter. Terminal agent errors fail only their
// prospect. A core.EngineFault (vector index, prospect store or proposal
// store unavailable) cancels the run: the fault is sent on the error channel
// and every unfinished prospect is reported as failed with reason
// "batch aborted: ...".
//
// # Streaming
//
// Committed stage, token, agent error, policy verdict and outcome events are published
// on the run's Bus topic; run_complete is the last event before the topic
// closes. Register a CallbackRunStart callback to subscribe before the first
// event is emitted.
//
// Usage:
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Generator = gen
//	    o.Search = search
//	})
//	runID, outcomes, errs, err := eng.RunPipeline(ctx, core.Scope{IDs: []string{"acme"}})
package engine
