// Package stream implements the per-run event bus.
//
// Every pipeline run owns a topic. Emitters publish token fragments, stage
// transitions, agent errors, verdicts and outcomes to the topic; the bus fans
// them out to every current subscriber of that run.
//
// Ordering: a topic serializes emissions, so each subscriber observes the
// events of one emitter in emission order. No ordering is defined across runs.
//
// Backpressure: delivery blocks while a subscriber's buffer is full. A
// subscriber that stops reading must cancel its context (or call the returned
// cancel function) to release emitters.
//
// Late subscribers only see events from the attach point on unless
// Options.ReplayBufferSize retains a window of recent events per run.
//
// Subscriptions end, with the channel closed, when the run is closed.
package stream
