package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := core.NewProspect(core.Company{ID: "acme", Domain: "acme.com"})
	p.Facts["pain"] = core.Fact{Value: "churn"}
	require.NoError(t, s.Put(ctx, p))

	p.Facts["mutated"] = core.Fact{}

	got, err := s.Get(ctx, "acme")
	require.NoError(t, err)
	assert.NotContains(t, got.Facts, "mutated")

	got.Facts["also-mutated"] = core.Fact{}
	again, err := s.Get(ctx, "acme")
	require.NoError(t, err)
	assert.NotContains(t, again.Facts, "also-mutated")
}

func TestMemoryStore_NotFoundAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Put(ctx, core.NewProspect(core.Company{ID: "a"})))
	require.NoError(t, s.SaveHandoff(ctx, core.HandoffPacket{ProspectID: "a"}))
	require.NoError(t, s.Delete(ctx, "a"))

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.Handoff(ctx, "a")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Error(t, s.Put(ctx, core.Prospect{}))
}

func TestMemoryStore_ListSortedAndReset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Put(ctx, core.NewProspect(core.Company{ID: id})))
	}

	ps, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 3)
	assert.Equal(t, "a", ps[0].ID)
	assert.Equal(t, "c", ps[2].ID)

	require.NoError(t, s.Reset(ctx))
	ps, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestMemoryStore_ContactsDedupByNormalizedEmail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveContact(ctx, "acme", core.Contact{Email: "Jane@Acme.com", Domain: "acme.com"}))
	require.NoError(t, s.SaveContact(ctx, "acme", core.Contact{Email: "jane+cx@acme.com"}))
	require.NoError(t, s.SaveContact(ctx, "acme", core.Contact{Email: "bob@acme.com"}))

	contacts, err := s.ListContacts(ctx, "WWW.Acme.com")
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p-%d", i%5)
			assert.NoError(t, s.Put(ctx, core.NewProspect(core.Company{ID: id})))
			_, _ = s.Get(ctx, id)
			_, _ = s.List(ctx)
		}(i)
	}
	wg.Wait()

	ps, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ps, 5)
}
