package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/philippgille/chromem-go"
)

const (
	activeCollection     = "records"
	supersededCollection = "superseded"

	metaVersion  = "_version"
	metaRecordID = "_record_id"
)

var (
	// ErrNotNormalized is returned for vectors whose norm deviates from 1 by
	// more than the index tolerance.
	ErrNotNormalized = errors.New("vector is not L2-normalized")

	// ErrDimensionMismatch is returned when a vector does not match the
	// dimension of the records already indexed.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyID is returned when inserting a record without identifier.
	ErrEmptyID = errors.New("record id is required")
)

// Options configure an Index.
type Options struct {
	// Tolerance is the accepted deviation of a vector norm from 1.
	Tolerance float64

	// PersistPath is the file Persist writes and Load reads. Empty disables
	// persistence.
	PersistPath string

	// Compress enables gzip compression of the persisted file.
	Compress bool
}

// Index is an exact nearest-neighbour index over L2-normalized vectors.
//
// Re-inserting an id never mutates the stored record: the previous version is
// archived in a superseded collection and the new one becomes active with an
// incremented version. Searches only see active records.
//
// Concurrency: searches take a read lock, inserts and loads a write lock.
type Index struct {
	mu         sync.RWMutex
	db         *chromem.DB
	active     *chromem.Collection
	superseded *chromem.Collection
	dim        int
	opts       Options
}

// identityEmbed is never called since every record carries its embedding.
func identityEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("embedding function called but vectors should be pre-computed")
}

// New creates an empty in-memory index.
func New(optFns ...func(o *Options)) (*Index, error) {
	opts := Options{Tolerance: DefaultTolerance}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}

	idx := &Index{opts: opts}
	if err := idx.attach(chromem.NewDB()); err != nil {
		return nil, err
	}
	return idx, nil
}

// attach binds the index to db, creating the collections when missing.
func (x *Index) attach(db *chromem.DB) error {
	active, err := db.GetOrCreateCollection(activeCollection, nil, identityEmbed)
	if err != nil {
		return fmt.Errorf("failed to get/create collection %q: %w", activeCollection, err)
	}
	superseded, err := db.GetOrCreateCollection(supersededCollection, nil, identityEmbed)
	if err != nil {
		return fmt.Errorf("failed to get/create collection %q: %w", supersededCollection, err)
	}
	x.db = db
	x.active = active
	x.superseded = superseded
	x.dim = 0
	return nil
}

func (x *Index) validate(vec []float32) error {
	if !IsNormalized(vec, x.opts.Tolerance) {
		return fmt.Errorf("%w: norm=%.6f tolerance=%g", ErrNotNormalized, Norm(vec), x.opts.Tolerance)
	}
	if x.dim != 0 && len(vec) != x.dim {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vec), x.dim)
	}
	return nil
}

// Insert adds a record or a new version of an existing one.
func (x *Index) Insert(ctx context.Context, id string, vec []float32, metadata map[string]string) error {
	if id == "" {
		return ErrEmptyID
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.validate(vec); err != nil {
		return err
	}

	version := 1
	if prev, err := x.active.GetByID(ctx, id); err == nil {
		prevVersion, _ := strconv.Atoi(prev.Metadata[metaVersion])
		version = prevVersion + 1

		archived := chromem.Document{
			ID:        fmt.Sprintf("%s@v%d", id, prevVersion),
			Content:   prev.Content,
			Metadata:  copyMeta(prev.Metadata),
			Embedding: prev.Embedding,
		}
		archived.Metadata[metaRecordID] = id
		if err := x.superseded.AddDocuments(ctx, []chromem.Document{archived}, runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to archive superseded record %s: %w", id, err)
		}
	}

	meta := copyMeta(metadata)
	meta[metaVersion] = strconv.Itoa(version)
	meta[metaRecordID] = id

	doc := chromem.Document{
		ID:        id,
		Content:   id,
		Metadata:  meta,
		Embedding: append([]float32(nil), vec...),
	}
	if err := x.active.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", id, err)
	}
	if x.dim == 0 {
		x.dim = len(vec)
	}

	return nil
}

// Search returns the k active records closest to q ordered by descending inner
// product; ties are broken by id. An empty index yields an empty result.
//
// Vectors within Tolerance of unit length are rescaled to exactly unit length
// when stored and queried, so Score is the cosine similarity of q and the
// record. For inputs of norm 1 that equals their inner product.
func (x *Index) Search(ctx context.Context, q []float32, k int) ([]core.VectorHit, error) {
	return x.SearchWhere(ctx, q, k, nil)
}

// SearchWhere is Search restricted to records whose metadata equals every
// key/value pair of where.
func (x *Index) SearchWhere(ctx context.Context, q []float32, k int, where map[string]string) ([]core.VectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := x.validate(q); err != nil {
		return nil, err
	}

	count := x.active.Count()
	if count == 0 || k <= 0 {
		return []core.VectorHit{}, nil
	}
	if k > count {
		k = count
	}

	var whereFilter map[string]string
	if len(where) > 0 {
		whereFilter = copyMeta(where)
	}

	results, err := x.active.QueryEmbedding(ctx, q, k, whereFilter, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]core.VectorHit, 0, len(results))
	for _, r := range results {
		version, _ := strconv.Atoi(r.Metadata[metaVersion])
		meta := make(map[string]string, len(r.Metadata))
		for key, v := range r.Metadata {
			if key == metaVersion || key == metaRecordID {
				continue
			}
			meta[key] = v
		}
		hits = append(hits, core.VectorHit{ID: r.ID, Score: r.Similarity, Version: version, Metadata: meta})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	return hits, nil
}

// Count returns the number of active records.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.active.Count()
}

// SupersededCount returns the number of archived record versions.
func (x *Index) SupersededCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.superseded.Count()
}

// Persist writes the index to the configured path. Without a path it is a
// no-op.
func (x *Index) Persist() error {
	if x.opts.PersistPath == "" {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if dir := filepath.Dir(x.opts.PersistPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create persist directory: %w", err)
		}
	}

	//nolint:staticcheck // Export is kept for file compatibility
	if err := x.db.Export(x.opts.PersistPath, x.opts.Compress, ""); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	return nil
}

// Load replaces the in-memory records with the persisted file. A missing file
// leaves the index empty; an unreadable one is an engine fault.
func (x *Index) Load() error {
	if x.opts.PersistPath == "" {
		return nil
	}
	if _, err := os.Stat(x.opts.PersistPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	db := chromem.NewDB()
	//nolint:staticcheck // Import mirrors Export
	if err := db.Import(x.opts.PersistPath, ""); err != nil {
		return core.NewEngineFault("vector", fmt.Errorf("failed to load index from %s: %w", x.opts.PersistPath, err))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.attach(db); err != nil {
		return core.NewEngineFault("vector", err)
	}

	return nil
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Ensure Index implements core.VectorIndex.
var _ core.VectorIndex = (*Index)(nil)
