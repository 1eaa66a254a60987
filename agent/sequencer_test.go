package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/prospectmesh/artifact"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sequencedProspect(ac *core.AgentContext) core.Prospect {
	base := testutil.NewProspectBuilder("acme").Name("Acme").Build()
	return testutil.NewProspectBuilder("acme").Name("Acme").
		Contact("jane@acme.com").
		Score(0.8).
		Allowed().
		Draft("Hi", "Hello Acme team."+ac.Compliance.Footer(base)).
		Build()
}

func testSlots(n int) []core.Slot {
	base := time.Date(2025, 1, 13, 15, 0, 0, 0, time.UTC)
	slots := make([]core.Slot, 0, n)
	for i := 0; i < n; i++ {
		start := base.AddDate(0, 0, i)
		slots = append(slots, core.Slot{Start: start, End: start.Add(30 * time.Minute)})
	}
	return slots
}

func TestSequencer_SendsOnceAndReusesProposal(t *testing.T) {
	ctx := context.Background()
	ac, _ := newTestContext(t)

	email := &testutil.MockEmail{}
	email.On("Send", mock.Anything, mock.MatchedBy(func(r core.SendRequest) bool {
		return r.IdempotencyKey == "acme:v1" && r.To == "jane@acme.com"
	})).Return(core.SendReceipt{ThreadID: "t-1", MessageID: "m-1"}, nil).Once()
	ac.Email = email

	slots := testSlots(4)
	calendar := &testutil.MockCalendar{}
	calendar.On("SuggestSlots", mock.Anything, "acme").Return(slots, nil)
	calendar.On("GenerateICS", mock.Anything, "Customer experience intro with Acme", slots[0]).Return("BEGIN:VCALENDAR", nil)
	ac.Calendar = calendar

	p := sequencedProspect(ac)
	first, err := Sequencer(DefaultOptions())(ctx, ac, p)
	require.NoError(t, err)
	require.NotNil(t, first.Proposal)
	assert.Equal(t, "acme:v1", first.Proposal.Key)
	assert.Equal(t, "t-1", first.Proposal.ThreadID)
	assert.Len(t, first.Proposal.Slots, 3)

	// A rerun from the same pre-send state finds the recorded proposal.
	second, err := Sequencer(DefaultOptions())(ctx, ac, p)
	require.NoError(t, err)
	assert.Equal(t, first.Proposal.MessageID, second.Proposal.MessageID)

	email.AssertNumberOfCalls(t, "Send", 1)
	calendar.AssertNumberOfCalls(t, "SuggestSlots", 1)

	req := email.Calls[0].Arguments.Get(1).(core.SendRequest)
	footer := strings.TrimSpace(ac.Compliance.Footer(p))
	assert.True(t, strings.HasSuffix(req.Body, footer), "footer stays last")
	assert.Contains(t, req.Body, "I have a few time slots available this week:\n- Mon Jan 13, 15:00 UTC")
	assert.Equal(t, "BEGIN:VCALENDAR", req.ICS)

	ics, err := artifact.Attachment(ac.Proposals, "acme", "acme:v1")
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCALENDAR", ics)
}

func TestSequencer_InvalidMailboxIsTerminal(t *testing.T) {
	ac, _ := newTestContext(t)
	email := &testutil.MockEmail{}
	email.On("Send", mock.Anything, mock.Anything).Return(core.SendReceipt{}, &core.RemoteError{Service: "email", Code: "mailbox_invalid"})
	ac.Email = email

	out, err := Sequencer(DefaultOptions())(context.Background(), ac, sequencedProspect(ac))
	var ae *core.AgentError
	require.ErrorAs(t, err, &ae)
	assert.False(t, ae.Retryable)
	assert.Equal(t, "mailbox_invalid", ae.Reason)
	assert.Nil(t, out.Proposal)

	_, found, err := artifact.LoadProposal(ac.Proposals, "acme", "acme:v1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSequencer_CalendarFailureDegrades(t *testing.T) {
	ac, _ := newTestContext(t)
	email := &testutil.FakeEmail{}
	ac.Email = email
	calendar := &testutil.MockCalendar{}
	calendar.On("SuggestSlots", mock.Anything, "acme").Return(nil, &core.RemoteError{Service: "calendar", Code: "unavailable"})
	ac.Calendar = calendar

	p := sequencedProspect(ac)
	out, err := Sequencer(DefaultOptions())(context.Background(), ac, p)
	require.NoError(t, err)
	require.NotNil(t, out.Proposal)
	assert.Empty(t, out.Proposal.Slots)

	sent := email.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, p.Drafts[0].Body, sent[0].Body)
	assert.Empty(t, sent[0].ICS)
}

func TestSequencer_SkipsUnqualifiedOrBlocked(t *testing.T) {
	ac, _ := newTestContext(t)
	email := &testutil.MockEmail{}
	ac.Email = email

	blocked := testutil.NewProspectBuilder("acme").Score(0.9).Blocked("domain suppressed").Draft("Hi", "x").Build()
	out, err := Sequencer(DefaultOptions())(context.Background(), ac, blocked)
	require.NoError(t, err)
	assert.Nil(t, out.Proposal)

	unqualified := testutil.NewProspectBuilder("acme").Allowed().Draft("Hi", "x").Build()
	out, err = Sequencer(DefaultOptions())(context.Background(), ac, unqualified)
	require.NoError(t, err)
	assert.Nil(t, out.Proposal)

	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
