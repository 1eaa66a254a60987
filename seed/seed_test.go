package seed

import (
	"context"
	"testing"

	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/internal/testutil"
	"github.com/hupe1980/prospectmesh/model"
	"github.com/hupe1980/prospectmesh/store"
	"github.com/hupe1980/prospectmesh/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
companies:
  - id: acme
    name: Acme
    domain: acme.com
    industry: SaaS
    size: 250
    pains: [customer retention]
  - name: Acme Duplicate
    domain: https://www.acme.com
  - name: Globex
    domain: globex.com
suppressions:
  - type: domain
    value: initech.com
    reason: opted out
knowledge:
  - id: churn
    text: SaaS churn benchmark is 5% monthly
    fact_key: benchmark.churn
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(seedYAML))
	require.NoError(t, err)
	assert.Len(t, doc.Companies, 3)
	assert.Equal(t, compliance.EntryDomain, doc.Suppressions[0].Type)
	assert.Equal(t, "benchmark.churn", doc.Knowledge[0].FactKey)

	_, err = Parse([]byte(`{"knowledge":[{"id":"x"}]}`))
	assert.ErrorContains(t, err, "id and text are required")
}

func TestParse_JSON(t *testing.T) {
	doc, err := Parse([]byte(`{"companies":[{"id":"acme","domain":"acme.com","size":10}]}`))
	require.NoError(t, err)
	require.Len(t, doc.Companies, 1)
	assert.Equal(t, 10, doc.Companies[0].Size)
}

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()
	doc, err := Parse([]byte(seedYAML))
	require.NoError(t, err)

	st := store.NewMemoryStore()
	gate := compliance.New()
	idx, err := vector.New()
	require.NoError(t, err)

	im := NewImporter(func(o *Options) {
		o.Store = st
		o.Suppressor = gate
		o.Index = idx
		o.Embedder = model.NewHashEmbedder(64)
	})

	rep, err := im.Import(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, Report{Companies: 2, Duplicates: 1, Suppressions: 1, Knowledge: 1}, rep)

	p, err := st.Get(ctx, "globex.com")
	require.NoError(t, err)
	assert.Equal(t, core.StageNew, p.Stage)
	assert.Equal(t, "Globex", p.Company.Name)

	assert.False(t, gate.Check(testutil.NewProspectBuilder("initech").Build()).Allowed)
	assert.Equal(t, 1, idx.Count())

	// Progress of stored prospects survives a second import.
	p.Stage = core.StageScorer
	require.NoError(t, st.Put(ctx, p))
	rep, err = im.Import(ctx, &Document{Companies: doc.Companies[2:]})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Kept)

	p, err = st.Get(ctx, "globex.com")
	require.NoError(t, err)
	assert.Equal(t, core.StageScorer, p.Stage)
}

func TestImporter_SkipsSectionsWithoutTarget(t *testing.T) {
	doc, err := Parse([]byte(seedYAML))
	require.NoError(t, err)

	rep, err := NewImporter().Import(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}
