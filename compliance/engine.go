package compliance

import (
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"
	"github.com/hupe1980/prospectmesh/logging"
)

// Options configure an Engine.
type Options struct {
	// Policies are the regional policies; DefaultPolicies when empty.
	Policies []Policy

	// Sender renders the default policies' footers.
	Sender Sender

	Clock  core.Clock
	Logger logging.Logger
}

// Engine implements core.ComplianceGate.
type Engine struct {
	mu      sync.RWMutex
	entries map[EntryType]map[string]Entry

	byRegion map[string]Policy
	strict   Policy

	clock  core.Clock
	logger logging.Logger
}

// New creates an Engine with an empty suppression list.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{Sender: DefaultSender()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(opts.Policies) == 0 {
		opts.Policies = DefaultPolicies(opts.Sender)
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	e := &Engine{
		entries:  newEntryMap(),
		byRegion: make(map[string]Policy),
		strict:   Strictest(opts.Policies),
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	for _, p := range opts.Policies {
		for _, r := range p.Regions {
			e.byRegion[r] = p
		}
	}

	return e
}

func newEntryMap() map[EntryType]map[string]Entry {
	return map[EntryType]map[string]Entry{
		EntryCompany: {},
		EntryDomain:  {},
		EntryEmail:   {},
	}
}

// Check decides whether outreach to p may proceed. Suppression entries are
// consulted first (company, then domain, then email); the first live match
// blocks. Otherwise the regional policy verifies the latest draft, if any.
func (e *Engine) Check(p core.Prospect) core.Verdict {
	now := e.clock()
	policy := e.PolicyFor(p)

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, t := range lookupOrder {
		for _, key := range identityKeys(t, p) {
			entry, ok := e.entries[t][key]
			if !ok || entry.Expired(now) {
				continue
			}
			return core.Verdict{Allowed: false, Reason: entry.BlockReason(), Policy: policy.Name}
		}
	}

	if d, ok := p.LatestDraft(); ok {
		if reason, ok := policy.Verify(d.Subject + "\n" + d.Body); !ok {
			return core.Verdict{Allowed: false, Reason: reason, Policy: policy.Name}
		}
	}

	return core.Verdict{Allowed: true, Policy: policy.Name}
}

// identityKeys lists the normalized values of p matched against entries of t.
func identityKeys(t EntryType, p core.Prospect) []string {
	var keys []string
	add := func(v string) {
		if k := normalize(t, v); k != "" {
			keys = append(keys, k)
		}
	}

	switch t {
	case EntryCompany:
		add(p.ID)
		add(p.Company.ID)
		add(p.Company.Name)
	case EntryDomain:
		add(p.Company.Domain)
		for _, c := range p.Contacts {
			add(c.Domain)
			add(dedup.EmailDomain(c.Email))
		}
	case EntryEmail:
		for _, c := range p.Contacts {
			add(c.Email)
		}
	}

	return keys
}

// PolicyFor resolves the regional policy of p; unknown regions get the
// strictest policy.
func (e *Engine) PolicyFor(p core.Prospect) Policy {
	if policy, ok := e.byRegion[DetectRegion(p.Company)]; ok {
		return policy
	}
	return e.strict
}

// Footer returns the footer mandated for p.
func (e *Engine) Footer(p core.Prospect) string {
	return e.PolicyFor(p).Footer
}

// Add records entries. Existing entries with the same type and value are kept:
// entries are immutable once recorded.
func (e *Engine) Add(entries ...Entry) error {
	for _, entry := range entries {
		if err := entry.validate(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range entries {
		key := entry.Key()
		if _, exists := e.entries[entry.Type][key]; exists {
			continue
		}
		e.entries[entry.Type][key] = entry
	}

	return nil
}

// Remove deletes an entry and reports whether it existed.
func (e *Engine) Remove(t EntryType, value string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := normalize(t, value)
	if _, ok := e.entries[t][key]; !ok {
		return false
	}
	delete(e.entries[t], key)
	return true
}

// Replace swaps the whole suppression list atomically.
func (e *Engine) Replace(entries []Entry) error {
	next := newEntryMap()
	for _, entry := range entries {
		if err := entry.validate(); err != nil {
			return err
		}
		if _, exists := next[entry.Type][entry.Key()]; !exists {
			next[entry.Type][entry.Key()] = entry
		}
	}

	e.mu.Lock()
	e.entries = next
	e.mu.Unlock()

	e.logger.Info("suppression list replaced entries=%d", len(entries))
	return nil
}

// List returns all recorded entries, expired ones included, sorted by type and
// value.
func (e *Engine) List() []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Entry
	for _, t := range lookupOrder {
		for _, entry := range e.entries[t] {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Key() < out[j].Key()
	})

	return out
}

// Ensure Engine implements core.ComplianceGate.
var _ core.ComplianceGate = (*Engine)(nil)
