package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_OrderAndNames(t *testing.T) {
	stages := Stages()
	require.Len(t, stages, 8)
	assert.Equal(t, StageHunter, stages[0])
	assert.Equal(t, StageCurator, stages[len(stages)-1])

	for i := 1; i < len(stages); i++ {
		assert.Equal(t, stages[i], stages[i-1].Next())
	}

	assert.Equal(t, StageCurator, StageCurator.Next())
	assert.True(t, StageCurator.Terminal())
	assert.False(t, StageSequencer.Terminal())

	s, err := ParseStage("writer")
	require.NoError(t, err)
	assert.Equal(t, StageWriter, s)

	_, err = ParseStage("bogus")
	assert.Error(t, err)
}

func TestProspect_AdvanceIsMonotonic(t *testing.T) {
	p := NewProspect(Company{ID: "acme", Name: "Acme", Domain: "acme.com"})

	prev := p.Stage
	for _, s := range Stages() {
		require.NoError(t, p.Advance(s))
		assert.GreaterOrEqual(t, int(p.Stage), int(prev))
		assert.LessOrEqual(t, int(p.Stage), int(StageCurator))
		prev = p.Stage
	}

	err := p.Advance(StageCurator)
	assert.True(t, errors.Is(err, ErrStageOrder))

	q := NewProspect(Company{ID: "b"})
	err = q.Advance(StageEnricher)
	assert.True(t, errors.Is(err, ErrStageOrder), "skipping a stage must fail")
}

func TestProspect_NewUsesDomainWhenIDMissing(t *testing.T) {
	p := NewProspect(Company{Name: "Acme", Domain: "acme.com"})
	assert.Equal(t, "acme.com", p.ID)
	assert.Equal(t, ComplianceUnchecked, p.Compliance.State)
}

func TestProspect_LiveFactsHidesExpired(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	p := NewProspect(Company{ID: "acme"})
	p.Facts["fresh"] = Fact{Value: "v", Confidence: 0.8, AcquiredAt: now.Add(-time.Hour), TTL: 24 * time.Hour}
	p.Facts["stale"] = Fact{Value: "v", Confidence: 0.8, AcquiredAt: now.Add(-48 * time.Hour), TTL: 24 * time.Hour}
	p.Facts["forever"] = Fact{Value: "v", Confidence: 0.5, AcquiredAt: now.Add(-1000 * time.Hour)}

	live := p.LiveFacts(now)
	assert.Contains(t, live, "fresh")
	assert.Contains(t, live, "forever")
	assert.NotContains(t, live, "stale")
	assert.Len(t, p.Facts, 3, "expired facts are retained")
	assert.Equal(t, []string{"forever", "fresh"}, p.FactKeys(now))
}

func TestProspect_CloneIsDeep(t *testing.T) {
	p := NewProspect(Company{ID: "acme", Pains: []string{"churn"}})
	p.Facts["k"] = Fact{Value: "v"}
	p.Contacts = append(p.Contacts, Contact{Email: "a@acme.com"})
	p.Drafts = append(p.Drafts, Draft{Version: 1, Body: "hi"})
	p.FitScore = &Score{Value: 0.5}
	p.Proposal = &Proposal{Key: "acme:v1", Slots: []Slot{{}}}

	c := p.Clone()
	c.Facts["k2"] = Fact{}
	c.Contacts[0].Email = "changed"
	c.Drafts[0].Body = "changed"
	c.FitScore.Value = 1
	c.Company.Pains[0] = "changed"
	c.Proposal.Slots = nil

	assert.NotContains(t, p.Facts, "k2")
	assert.Equal(t, "a@acme.com", p.Contacts[0].Email)
	assert.Equal(t, "hi", p.Drafts[0].Body)
	assert.Equal(t, 0.5, p.FitScore.Value)
	assert.Equal(t, "churn", p.Company.Pains[0])
	assert.Len(t, p.Proposal.Slots, 1)
}

func TestProspect_DraftHelpers(t *testing.T) {
	p := NewProspect(Company{ID: "acme"})
	_, ok := p.LatestDraft()
	assert.False(t, ok)
	assert.Equal(t, 0, p.DraftVersion())

	p.Drafts = append(p.Drafts, Draft{Version: 1}, Draft{Version: 2, Subject: "s"})
	d, ok := p.LatestDraft()
	assert.True(t, ok)
	assert.Equal(t, "s", d.Subject)
	assert.Equal(t, 2, p.DraftVersion())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "completed", Completed("a", &HandoffPacket{}).String())
	assert.Equal(t, "blocked(domain suppressed)", Blocked("a", "domain suppressed").String())
	assert.Equal(t, "failed(sequencer, mailbox_invalid)", Failed("a", StageSequencer, "mailbox_invalid").String())
}
