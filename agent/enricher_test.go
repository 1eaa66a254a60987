package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEnricher_MergesTopResultsWithTTL(t *testing.T) {
	ac, _ := newTestContext(t)
	search := &testutil.FakeSearch{}
	ac.Search = search

	p := testutil.NewProspectBuilder("acme").Name("Acme").Build()
	out, err := Enricher(DefaultOptions())(context.Background(), ac, p)
	require.NoError(t, err)

	assert.Equal(t, 3, search.Calls())
	assert.Len(t, out.Facts, 6)
	assert.False(t, out.EnrichmentPartial)
	assert.Equal(t, 1.0, out.EnrichmentCoverage)

	f := out.Facts["cx.0"]
	assert.Equal(t, "Acme customer experience: focus on customer retention and NPS", f.Value)
	assert.Equal(t, DefaultOptions().FactTTL, f.TTL)
	assert.Equal(t, testNow, f.AcquiredAt)
}

func TestEnricher_KeepsStrongerExistingFact(t *testing.T) {
	ac, _ := newTestContext(t)
	ac.Search = &testutil.FakeSearch{}

	p := testutil.NewProspectBuilder("acme").Name("Acme").
		Fact("cx.0", "verified", 0.95, testNow.Add(-time.Hour), 24*time.Hour).
		Fact("cx.1", "expired", 0.99, testNow.Add(-48*time.Hour), time.Hour).
		Build()

	out, err := Enricher(DefaultOptions())(context.Background(), ac, p)
	require.NoError(t, err)
	assert.Equal(t, "verified", out.Facts["cx.0"].Value)
	assert.NotEqual(t, "expired", out.Facts["cx.1"].Value)
}

func TestEnricher_RemoteErrorMarksPartial(t *testing.T) {
	ac, _ := newTestContext(t)
	search := &testutil.MockSearch{}
	search.On("Query", mock.Anything, "Acme customer experience", 2).Return([]core.SearchResult{{Text: "hit", Confidence: 0.6}}, nil)
	search.On("Query", mock.Anything, mock.Anything, 2).Return(nil, &core.RemoteError{Service: "search", Code: "quota"})
	ac.Search = search

	p := testutil.NewProspectBuilder("acme").Name("Acme").Build()
	out, err := Enricher(DefaultOptions())(context.Background(), ac, p)
	require.NoError(t, err)

	assert.True(t, out.EnrichmentPartial)
	assert.InDelta(t, 1.0/3.0, out.EnrichmentCoverage, 1e-9)
	assert.Equal(t, "hit", out.Facts["cx.0"].Value)
	search.AssertNumberOfCalls(t, "Query", 3)
}

func TestEnricher_TransportErrorIsRetryable(t *testing.T) {
	ac, _ := newTestContext(t)
	ac.Search = &testutil.FakeSearch{Err: &core.TransientError{Err: errors.New("connection refused")}}

	_, err := Enricher(DefaultOptions())(context.Background(), ac, testutil.NewProspectBuilder("acme").Build())
	assert.True(t, core.IsTransient(err))
}

func TestEnricher_NoSearchIsPartial(t *testing.T) {
	ac, _ := newTestContext(t)
	out, err := Enricher(DefaultOptions())(context.Background(), ac, testutil.NewProspectBuilder("acme").Build())
	require.NoError(t, err)
	assert.True(t, out.EnrichmentPartial)
	assert.Zero(t, out.EnrichmentCoverage)
}
