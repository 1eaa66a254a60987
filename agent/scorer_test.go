package agent

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitScore(t *testing.T) {
	c := core.Company{Industry: "SaaS", Size: 500, Pains: []string{"customer retention"}}
	facts := map[string]core.Fact{"a": {Value: "Launched an NPS program", Confidence: 0.8}}
	contacts := []core.Contact{{Email: "jane@acme.com", Source: "search"}}

	tests := []struct {
		name       string
		company    core.Company
		facts      map[string]core.Fact
		contacts   []core.Contact
		value      float64
		confidence float64
	}{
		{name: "target", company: c, facts: facts, contacts: contacts, value: 0.3 + 0.2 + 0.2 + 0.05 + 0.16, confidence: 0.8},
		{name: "no facts", company: core.Company{Industry: "Mining", Size: 20}, contacts: contacts, value: 0.15, confidence: 0.5},
		{name: "fallback only", company: core.Company{Industry: "Retail", Size: 9000}, contacts: []core.Contact{{Source: "fallback"}}, value: 0.2, confidence: 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := FitScore(tt.company, tt.facts, tt.contacts)
			assert.InDelta(t, tt.value, s.Value, 1e-9)
			assert.InDelta(t, tt.confidence, s.Confidence, 1e-9)
		})
	}

	// Deterministic for identical inputs.
	assert.Equal(t, FitScore(c, facts, contacts), FitScore(c, facts, contacts))
}

func TestFitScore_CappedAtOne(t *testing.T) {
	facts := map[string]core.Fact{}
	for i, v := range []string{"customer retention", "nps", "support efficiency", "personalization", "a", "b"} {
		facts[string(rune('a'+i))] = core.Fact{Value: v, Confidence: 1}
	}
	s := FitScore(core.Company{Industry: "fintech", Size: 200}, facts, nil)
	assert.Equal(t, 1.0, s.Value)
}

func TestScorer_PartialEnrichment(t *testing.T) {
	ac, _ := newTestContext(t)
	p := testutil.NewProspectBuilder("acme").
		Fact("k", "nps", 0.8, testNow, time.Hour).
		Contact("jane@acme.com").
		Build()
	p.EnrichmentPartial = true
	p.EnrichmentCoverage = 0.5

	out, err := Scorer(DefaultOptions())(context.Background(), ac, p)
	require.NoError(t, err)
	require.NotNil(t, out.FitScore)
	assert.InDelta(t, 0.4, out.FitScore.Confidence, 1e-9)
	assert.True(t, out.Qualified)

	opts := DefaultOptions()
	opts.PartialFacts = SuppressPartial
	opts.MinFitScore = 0.5
	p.FitScore = &core.Score{Value: 0.42, Confidence: 1}
	out, err = Scorer(opts)(context.Background(), ac, p)
	require.NoError(t, err)
	assert.Equal(t, 0.42, out.FitScore.Value, "suppressed scoring keeps the previous score")
	assert.False(t, out.Qualified)
}

func TestScorer_MinFitScore(t *testing.T) {
	ac, _ := newTestContext(t)
	opts := DefaultOptions()
	opts.MinFitScore = 0.9

	out, err := Scorer(opts)(context.Background(), ac, testutil.NewProspectBuilder("acme").Industry("Mining").Build())
	require.NoError(t, err)
	assert.False(t, out.Qualified)
}

func TestParsePartialFactsPolicy(t *testing.T) {
	p, err := ParsePartialFactsPolicy("suppress")
	require.NoError(t, err)
	assert.Equal(t, SuppressPartial, p)

	_, err = ParsePartialFactsPolicy("bogus")
	assert.Error(t, err)
}
