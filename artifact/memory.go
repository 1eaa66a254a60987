package artifact

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/prospectmesh/core"
)

// MemoryStore is an in-process core.ProposalStore keeping blobs in a nested
// map guarded by an RWMutex. Data is copied on save and retrieval.
//
// Layout: prospectID -> key -> raw bytes
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]map[string][]byte)}
}

// Save stores (or overwrites) data under prospectID and key.
func (m *MemoryStore) Save(prospectID, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[prospectID]; !ok {
		m.blobs[prospectID] = make(map[string][]byte)
	}
	m.blobs[prospectID][key] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the stored bytes or core.ErrNotFound.
func (m *MemoryStore) Get(prospectID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[prospectID][key]
	if !ok {
		return nil, fmt.Errorf("proposal %s/%s: %w", prospectID, key, core.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List returns the sorted keys stored for prospectID.
func (m *MemoryStore) List(prospectID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.blobs[prospectID]))
	for k := range m.blobs[prospectID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes a blob or returns core.ErrNotFound.
func (m *MemoryStore) Delete(prospectID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[prospectID][key]; !ok {
		return fmt.Errorf("proposal %s/%s: %w", prospectID, key, core.ErrNotFound)
	}
	delete(m.blobs[prospectID], key)
	if len(m.blobs[prospectID]) == 0 {
		delete(m.blobs, prospectID)
	}
	return nil
}

// Clear drops every stored blob.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs = make(map[string]map[string][]byte)
}

var _ core.ProposalStore = (*MemoryStore)(nil)
