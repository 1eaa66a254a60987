package vector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(t *testing.T, v ...float32) []float32 {
	t.Helper()
	n, err := Normalize(v)
	require.NoError(t, err)
	return n
}

func TestIndex_SearchOrdersByScoreThenID(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	require.NoError(t, err)

	require.NoError(t, idx.Insert(ctx, "b", unit(t, 1, 0), nil))
	require.NoError(t, idx.Insert(ctx, "a", unit(t, 1, 0), nil))
	require.NoError(t, idx.Insert(ctx, "c", unit(t, 0, 1), nil))
	require.NoError(t, idx.Insert(ctx, "d", unit(t, 1, 1), nil))

	hits, err := idx.Search(ctx, unit(t, 1, 0), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
	assert.Equal(t, "d", hits[2].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestIndex_ScoreIsCosineWithinTolerance(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	require.NoError(t, err)

	// Norm 1.0005 passes the default tolerance.
	const scale = 1.0005
	require.NoError(t, idx.Insert(ctx, "slightly-long", []float32{0.6 * scale, 0.8 * scale}, nil))

	hits, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.6, hits[0].Score, 1e-6)
}

func TestIndex_EmptyAndOversizedK(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	require.NoError(t, err)

	hits, err := idx.Search(ctx, unit(t, 1, 0), 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)

	require.NoError(t, idx.Insert(ctx, "only", unit(t, 0, 1), nil))
	hits, err = idx.Search(ctx, unit(t, 1, 0), 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = idx.Search(ctx, unit(t, 1, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_RejectsUnnormalizedAndWrongDimension(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	require.NoError(t, err)

	err = idx.Insert(ctx, "x", []float32{3, 4}, nil)
	assert.True(t, errors.Is(err, ErrNotNormalized))
	assert.Equal(t, 0, idx.Count())

	// within tolerance
	require.NoError(t, idx.Insert(ctx, "x", []float32{1.0004, 0}, nil))

	err = idx.Insert(ctx, "y", unit(t, 1, 1, 1), nil)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	_, err = idx.Search(ctx, []float32{2, 0}, 1)
	assert.True(t, errors.Is(err, ErrNotNormalized))

	assert.ErrorIs(t, idx.Insert(ctx, "", unit(t, 1, 0), nil), ErrEmptyID)
}

func TestIndex_ReinsertSupersedes(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	require.NoError(t, err)

	require.NoError(t, idx.Insert(ctx, "acme:draft", unit(t, 1, 0), map[string]string{"prospect_id": "acme"}))
	require.NoError(t, idx.Insert(ctx, "acme:draft", unit(t, 0, 1), map[string]string{"prospect_id": "acme"}))

	assert.Equal(t, 1, idx.Count())
	assert.Equal(t, 1, idx.SupersededCount())

	hits, err := idx.Search(ctx, unit(t, 0, 1), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Version)
	assert.Equal(t, "acme", hits[0].Metadata["prospect_id"])
	assert.NotContains(t, hits[0].Metadata, metaVersion)
}

func TestIndex_SearchWhereFiltersMetadata(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	require.NoError(t, err)

	require.NoError(t, idx.Insert(ctx, "a1", unit(t, 1, 0), map[string]string{"kind": "draft"}))
	require.NoError(t, idx.Insert(ctx, "a2", unit(t, 1, 0.1), map[string]string{"kind": "fact"}))

	hits, err := idx.SearchWhere(ctx, unit(t, 1, 0), 5, map[string]string{"kind": "fact"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a2", hits[0].ID)
}

func TestIndex_ConcurrentSearchDuringInsert(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	require.NoError(t, err)
	require.NoError(t, idx.Insert(ctx, "seed", unit(t, 1, 0), nil))

	q := unit(t, 1, 0)
	vecs := make([][]float32, 8)
	for i := range vecs {
		vecs[i] = unit(t, float32(i+1), 1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, idx.Insert(ctx, "r", vecs[i], nil))
		}(i)
		go func() {
			defer wg.Done()
			hits, err := idx.Search(ctx, q, 2)
			assert.NoError(t, err)
			for _, h := range hits {
				assert.Contains(t, []string{"seed", "r"}, h.ID)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, idx.Count())
	assert.Equal(t, 7, idx.SupersededCount())
}

func TestIndex_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.gob")

	idx, err := New(func(o *Options) { o.PersistPath = path })
	require.NoError(t, err)
	require.NoError(t, idx.Insert(ctx, "a", unit(t, 1, 0), map[string]string{"k": "v"}))
	require.NoError(t, idx.Persist())

	restored, err := New(func(o *Options) { o.PersistPath = path })
	require.NoError(t, err)
	require.NoError(t, restored.Load())
	assert.Equal(t, 1, restored.Count())

	hits, err := restored.Search(ctx, unit(t, 1, 0), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v", hits[0].Metadata["k"])
}

func TestIndex_LoadCorruptFileIsEngineFault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a gob"), 0o600))

	idx, err := New(func(o *Options) { o.PersistPath = path })
	require.NoError(t, err)

	err = idx.Load()
	require.Error(t, err)
	assert.True(t, core.IsEngineFault(err))
}

func TestIndex_LoadMissingFileIsEmpty(t *testing.T) {
	idx, err := New(func(o *Options) { o.PersistPath = filepath.Join(t.TempDir(), "absent.gob") })
	require.NoError(t, err)
	require.NoError(t, idx.Load())
	assert.Equal(t, 0, idx.Count())
}

func TestNormalize(t *testing.T) {
	_, err := Normalize([]float32{0, 0})
	assert.ErrorIs(t, err, ErrZeroVector)

	v, err := Normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.True(t, IsNormalized(v, DefaultTolerance))
	assert.False(t, IsNormalized(nil, DefaultTolerance))
	assert.InDelta(t, 1.0, Dot(v, v), 1e-5)
}
