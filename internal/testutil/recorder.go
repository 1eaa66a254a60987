package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/prospectmesh/core"
)

// Recorder is a core.Emitter keeping every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []core.Event

	// OnEmit, when set, observes each event after it was recorded.
	OnEmit func(core.Event)
}

// Emit implements core.Emitter.
func (r *Recorder) Emit(_ context.Context, _ string, ev core.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.OnEmit
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return nil
}

// Events returns a snapshot of the recorded events.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// Kind returns the recorded events of kind k.
func (r *Recorder) Kind(k core.EventKind) []core.Event {
	var out []core.Event
	for _, ev := range r.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// Tokens concatenates the token fragments recorded for prospectID.
func (r *Recorder) Tokens(prospectID string) []string {
	var out []string
	for _, ev := range r.Kind(core.EventToken) {
		if ev.ProspectID == prospectID {
			out = append(out, ev.Text)
		}
	}
	return out
}

var _ core.Emitter = (*Recorder)(nil)
