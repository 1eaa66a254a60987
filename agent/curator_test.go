package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/internal/testutil"
	"github.com/hupe1980/prospectmesh/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurator_HandoffForSequencedProspect(t *testing.T) {
	ctx := context.Background()
	ac, _ := newTestContext(t)
	email := &testutil.FakeEmail{}
	ac.Email = email
	ac.Calendar = &testutil.FakeCalendar{}
	handoffs := store.NewMemoryStore()
	ac.Handoffs = handoffs

	p, err := Sequencer(DefaultOptions())(ctx, ac, sequencedProspect(ac))
	require.NoError(t, err)

	out, err := Curator(DefaultOptions())(ctx, ac, p)
	require.NoError(t, err)
	require.NotNil(t, out.Outcome)
	assert.Equal(t, core.OutcomeCompleted, out.Outcome.Kind)
	require.NotNil(t, out.Handoff)
	assert.Equal(t, "acme", out.Handoff.ProspectID)
	assert.Len(t, out.Handoff.Slots, 3)
	require.NotNil(t, out.Handoff.Thread)
	assert.Len(t, out.Handoff.Thread.Messages, 1)
	assert.Contains(t, out.Handoff.Summary, "Fit score 0.80")
	assert.Contains(t, out.Handoff.Summary, "Contacted")

	saved, err := handoffs.Handoff(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, out.Handoff.Summary, saved.Summary)
}

func TestCurator_BlockedReasons(t *testing.T) {
	ac, _ := newTestContext(t)
	handoffs := store.NewMemoryStore()
	ac.Handoffs = handoffs

	tests := []struct {
		name   string
		p      core.Prospect
		reason string
	}{
		{name: "suppressed", p: testutil.NewProspectBuilder("acme").Score(0.9).Blocked("domain suppressed").Build(), reason: "domain suppressed"},
		{name: "unchecked", p: testutil.NewProspectBuilder("acme").Score(0.9).Build(), reason: "compliance unchecked"},
		{name: "no score", p: testutil.NewProspectBuilder("acme").Allowed().Build(), reason: "fit score unavailable"},
		{name: "not sequenced", p: testutil.NewProspectBuilder("acme").Allowed().Score(0.9).Build(), reason: "outreach not sequenced"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Curator(DefaultOptions())(context.Background(), ac, tt.p)
			require.NoError(t, err)
			require.NotNil(t, out.Outcome)
			assert.Equal(t, core.OutcomeBlocked, out.Outcome.Kind)
			assert.Equal(t, tt.reason, out.Outcome.Reason)
			assert.Nil(t, out.Handoff)
		})
	}

	lowScore := testutil.NewProspectBuilder("acme").Allowed().Build()
	lowScore.FitScore = &core.Score{Value: 0.1}
	out, err := Curator(DefaultOptions())(context.Background(), ac, lowScore)
	require.NoError(t, err)
	assert.Equal(t, "blocked(low fit score)", out.Outcome.String())

	_, err = handoffs.Handoff(context.Background(), "acme")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

type failingHandoffs struct{ err error }

func (f failingHandoffs) SaveHandoff(context.Context, core.HandoffPacket) error { return f.err }

func TestCurator_HandoffSaveErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		fault     bool
		retryable bool
		reason    string
	}{
		{name: "rejected packet", err: &core.RemoteError{Service: "store", Code: "invalid_packet"}, reason: "invalid_packet"},
		{name: "transient", err: &core.TransientError{Err: errors.New("connection refused")}, retryable: true, reason: "handoff save failed"},
		{name: "store unusable", err: errors.New("database is closed"), fault: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac, _ := newTestContext(t)
			ac.Email = &testutil.FakeEmail{}
			ac.Calendar = &testutil.FakeCalendar{}

			p, err := Sequencer(DefaultOptions())(ctx, ac, sequencedProspect(ac))
			require.NoError(t, err)

			ac.Handoffs = failingHandoffs{err: tt.err}
			out, err := Curator(DefaultOptions())(ctx, ac, p)
			require.Error(t, err)
			assert.Nil(t, out.Handoff)
			assert.Equal(t, tt.fault, core.IsEngineFault(err))
			if tt.fault {
				return
			}

			var ae *core.AgentError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, core.StageCurator, ae.Stage)
			assert.Equal(t, tt.retryable, ae.Retryable)
			assert.Equal(t, tt.reason, ae.Reason)
		})
	}
}
