package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/prospectmesh/core"
)

// FakeSearch answers every query with two deterministic hits.
type FakeSearch struct {
	mu    sync.Mutex
	calls int

	// Err, when set, is returned by every call.
	Err error
}

// Query implements core.Search.
func (f *FakeSearch) Query(_ context.Context, q string, limit int) ([]core.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res := []core.SearchResult{
		{Text: q + ": focus on customer retention and NPS", Source: "news", Confidence: 0.8, Timestamp: ts},
		{Text: q + ": investing in support efficiency", Source: "blog", Confidence: 0.7, Timestamp: ts},
	}
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// Calls returns the number of queries served.
func (f *FakeSearch) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeEmail records sends and drops duplicates of the same idempotency key.
type FakeEmail struct {
	mu      sync.Mutex
	sent    []core.SendRequest
	keys    map[string]core.SendReceipt
	threads map[string]*core.Thread

	// Err, when set, is returned by Send.
	Err error
}

// Send implements core.Email.
func (f *FakeEmail) Send(_ context.Context, req core.SendRequest) (core.SendReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return core.SendReceipt{}, f.Err
	}
	if f.keys == nil {
		f.keys = map[string]core.SendReceipt{}
		f.threads = map[string]*core.Thread{}
	}
	if r, ok := f.keys[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return r, nil
	}

	f.sent = append(f.sent, req)
	threadID := "thread-" + req.ProspectID
	r := core.SendReceipt{ThreadID: threadID, MessageID: fmt.Sprintf("msg-%d", len(f.sent))}
	f.keys[req.IdempotencyKey] = r

	t, ok := f.threads[req.ProspectID]
	if !ok {
		t = &core.Thread{ID: threadID, ProspectID: req.ProspectID}
		f.threads[req.ProspectID] = t
	}
	t.Messages = append(t.Messages, core.ThreadMessage{ID: r.MessageID, From: "outbound", To: req.To, Subject: req.Subject, Body: req.Body})
	return r, nil
}

// Thread implements core.Email.
func (f *FakeEmail) Thread(_ context.Context, prospectID string) (*core.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[prospectID]
	if !ok {
		return nil, nil
	}
	cp := *t
	cp.Messages = append([]core.ThreadMessage(nil), t.Messages...)
	return &cp, nil
}

// Sent returns the delivered requests.
func (f *FakeEmail) Sent() []core.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.SendRequest(nil), f.sent...)
}

// FakeCalendar proposes three slots starting at Base.
type FakeCalendar struct {
	Base time.Time
}

// SuggestSlots implements core.Calendar.
func (f *FakeCalendar) SuggestSlots(_ context.Context, _ string) ([]core.Slot, error) {
	base := f.Base
	if base.IsZero() {
		base = time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC)
	}
	var slots []core.Slot
	for _, d := range []int{2, 3, 5} {
		start := base.AddDate(0, 0, d)
		slots = append(slots, core.Slot{Start: start, End: start.Add(30 * time.Minute)})
	}
	return slots, nil
}

// GenerateICS implements core.Calendar.
func (f *FakeCalendar) GenerateICS(_ context.Context, summary string, slot core.Slot) (string, error) {
	return fmt.Sprintf("BEGIN:VCALENDAR\nSUMMARY:%s\nDTSTART:%s\nEND:VCALENDAR", summary, slot.Start.Format("20060102T150405Z")), nil
}

var (
	_ core.Search   = (*FakeSearch)(nil)
	_ core.Email    = (*FakeEmail)(nil)
	_ core.Calendar = (*FakeCalendar)(nil)
)
