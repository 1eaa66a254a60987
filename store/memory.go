package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"
)

// MemoryStore is a volatile store keeping prospects, contacts and handoff
// packets in process local maps. It is safe for concurrent access. Prospects
// are cloned on the way in and out so callers never share state with the
// store.
type MemoryStore struct {
	mu        sync.RWMutex
	prospects map[string]core.Prospect
	contacts  map[string][]core.Contact // normalized domain -> contacts
	handoffs  map[string]core.HandoffPacket
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prospects: make(map[string]core.Prospect),
		contacts:  make(map[string][]core.Contact),
		handoffs:  make(map[string]core.HandoffPacket),
	}
}

// Get returns a copy of the stored prospect or core.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (core.Prospect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prospects[id]
	if !ok {
		return core.Prospect{}, fmt.Errorf("prospect %s: %w", id, core.ErrNotFound)
	}
	return p.Clone(), nil
}

// Put stores a copy of p, overwriting any previous version.
func (s *MemoryStore) Put(_ context.Context, p core.Prospect) error {
	if p.ID == "" {
		return fmt.Errorf("prospect id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prospects[p.ID] = p.Clone()
	return nil
}

// List returns copies of all prospects ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]core.Prospect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Prospect, 0, len(s.prospects))
	for _, p := range s.prospects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes the prospect and its handoff packet. Unknown ids are ignored.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prospects, id)
	delete(s.handoffs, id)
	return nil
}

// Reset drops every record.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prospects = make(map[string]core.Prospect)
	s.contacts = make(map[string][]core.Contact)
	s.handoffs = make(map[string]core.HandoffPacket)
	return nil
}

// ListContacts returns the contacts recorded for domain.
func (s *MemoryStore) ListContacts(_ context.Context, domain string) ([]core.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Contact{}, s.contacts[dedup.NormalizeDomain(domain)]...), nil
}

// SaveContact records c under its domain unless an entry with the same
// normalized email already exists.
func (s *MemoryStore) SaveContact(_ context.Context, _ string, c core.Contact) error {
	domain := c.Domain
	if domain == "" {
		domain = dedup.EmailDomain(c.Email)
	}
	domain = dedup.NormalizeDomain(domain)

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.contacts[domain]
	if d := dedup.Admit(c, dedup.Set(existing)); !d.Accepted {
		return nil
	}
	s.contacts[domain] = append(existing, c)
	return nil
}

// SaveHandoff stores the packet keyed by prospect id.
func (s *MemoryStore) SaveHandoff(_ context.Context, packet core.HandoffPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffs[packet.ProspectID] = packet
	return nil
}

// Handoff returns the packet saved for prospectID.
func (s *MemoryStore) Handoff(_ context.Context, prospectID string) (core.HandoffPacket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handoffs[prospectID]
	if !ok {
		return core.HandoffPacket{}, fmt.Errorf("handoff %s: %w", prospectID, core.ErrNotFound)
	}
	return h, nil
}

var (
	_ core.ProspectStore = (*MemoryStore)(nil)
	_ core.Directory     = (*MemoryStore)(nil)
	_ core.HandoffStore  = (*MemoryStore)(nil)
)
