package core

import "context"

// ProspectStore persists prospect state between stages and across runs.
// Implementations must be safe for concurrent use and return copies so callers
// cannot mutate stored state. Get returns ErrNotFound for unknown ids.
type ProspectStore interface {
	Get(ctx context.Context, id string) (Prospect, error)
	Put(ctx context.Context, p Prospect) error
	List(ctx context.Context) ([]Prospect, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) error
}

// ProposalStore keeps sequencing proposals keyed by prospect and idempotency
// key. Short method names (Save/Get/List/Delete) mirror other store interfaces
// for consistency.
type ProposalStore interface {
	Save(prospectID, key string, data []byte) error
	Get(prospectID, key string) ([]byte, error)
	List(prospectID string) ([]string, error)
	Delete(prospectID, key string) error
}

// VectorHit is one nearest-neighbour result.
type VectorHit struct {
	ID       string
	Score    float32
	Version  int
	Metadata map[string]string
}

// VectorIndex is the read/insert view of the similarity index agents use.
type VectorIndex interface {
	Insert(ctx context.Context, id string, vec []float32, metadata map[string]string) error
	Search(ctx context.Context, q []float32, k int) ([]VectorHit, error)
	SearchWhere(ctx context.Context, q []float32, k int, where map[string]string) ([]VectorHit, error)
}

// Verdict is the compliance decision for a prospect.
type Verdict struct {
	Allowed bool
	Reason  string
	Policy  string
}

// ComplianceGate decides whether outreach to a prospect may proceed and
// exposes the footer the resolved regional policy mandates.
type ComplianceGate interface {
	Check(p Prospect) Verdict
	Footer(p Prospect) string
}

// Emitter publishes events to the subscribers of a run.
type Emitter interface {
	Emit(ctx context.Context, runID string, ev Event) error
}
