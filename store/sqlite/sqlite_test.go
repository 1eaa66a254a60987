package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "prospects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prospects.db")

	s, err := Open(path)
	require.NoError(t, err)

	p := core.NewProspect(core.Company{ID: "acme", Name: "Acme", Domain: "acme.com", Size: 500})
	require.NoError(t, p.Advance(core.StageHunter))
	p.Facts["pain"] = core.Fact{Value: "churn", Confidence: 0.9, AcquiredAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), TTL: time.Hour}
	require.NoError(t, s.Put(ctx, p))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, core.StageHunter, got.Stage)
	assert.Equal(t, p.Facts["pain"], got.Facts["pain"])
	assert.Equal(t, 500, got.Company.Size)
}

func TestStore_NotFoundListDeleteReset(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	for _, id := range []string{"b", "a"} {
		require.NoError(t, s.Put(ctx, core.NewProspect(core.Company{ID: id})))
	}
	ps, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "a", ps[0].ID)

	require.NoError(t, s.SaveHandoff(ctx, core.HandoffPacket{ProspectID: "a", Summary: "ready"}))
	h, err := s.Handoff(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ready", h.Summary)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Handoff(ctx, "a")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Reset(ctx))
	ps, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestStore_ContactsIgnoreDuplicates(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.SaveContact(ctx, "acme", core.Contact{Email: "Jane@acme.com", Domain: "acme.com"}))
	require.NoError(t, s.SaveContact(ctx, "acme", core.Contact{Email: "jane+x@ACME.com", Domain: "acme.com"}))
	require.NoError(t, s.SaveContact(ctx, "acme", core.Contact{Email: "ops@acme.com"}))

	contacts, err := s.ListContacts(ctx, "acme.com")
	require.NoError(t, err)
	assert.Len(t, contacts, 2)

	none, err := s.ListContacts(ctx, "other.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}
