package core

import (
	"fmt"
	"sort"
	"time"
)

// Stage identifies the last completed step of the fixed agent chain. Stages
// are ordered; a prospect only ever moves forward except on explicit reset.
type Stage int

const (
	// StageNew marks a prospect that has not completed any agent yet.
	StageNew Stage = iota
	StageHunter
	StageEnricher
	StageContactor
	StageScorer
	StageWriter
	StageCompliance
	StageSequencer
	// StageCurator is terminal.
	StageCurator
)

var stageNames = map[Stage]string{
	StageNew:        "new",
	StageHunter:     "hunter",
	StageEnricher:   "enricher",
	StageContactor:  "contactor",
	StageScorer:     "scorer",
	StageWriter:     "writer",
	StageCompliance: "compliance",
	StageSequencer:  "sequencer",
	StageCurator:    "curator",
}

// Stages lists every executable stage in chain order.
func Stages() []Stage {
	return []Stage{
		StageHunter, StageEnricher, StageContactor, StageScorer,
		StageWriter, StageCompliance, StageSequencer, StageCurator,
	}
}

// String returns the lower-case stage name.
func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Next returns the stage that follows s. The terminal stage returns itself.
func (s Stage) Next() Stage {
	if s >= StageCurator {
		return StageCurator
	}
	return s + 1
}

// Terminal reports whether no further stage can run.
func (s Stage) Terminal() bool { return s >= StageCurator }

// ParseStage resolves a stage from its name.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return StageNew, fmt.Errorf("unknown stage %q", name)
}

// Company is the seed identity a prospect is built from.
type Company struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Domain   string   `json:"domain" yaml:"domain"`
	Industry string   `json:"industry" yaml:"industry"`
	Size     int      `json:"size" yaml:"size"`
	Region   string   `json:"region,omitempty" yaml:"region,omitempty"`
	Pains    []string `json:"pains,omitempty" yaml:"pains,omitempty"`
	Notes    []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Fact is a time-bounded piece of enrichment data.
type Fact struct {
	Value      string        `json:"value"`
	Confidence float64       `json:"confidence"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl"`
	Source     string        `json:"source,omitempty"`
}

// Expired reports whether the fact is past its time-to-live at now. A zero
// TTL never expires.
func (f Fact) Expired(now time.Time) bool {
	if f.TTL <= 0 {
		return false
	}
	return now.After(f.AcquiredAt.Add(f.TTL))
}

// Contact is a reachable person (or role mailbox) at the prospect company.
type Contact struct {
	Email  string `json:"email"`
	Domain string `json:"domain"`
	Name   string `json:"name,omitempty"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`
}

// Score is the qualification estimate produced by the Scorer.
type Score struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Draft is one generated version of the outreach message.
type Draft struct {
	Version   int       `json:"version"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// SimilarTo names the closest earlier draft of another prospect when it
	// crossed the near-duplicate threshold.
	SimilarTo  string  `json:"similar_to,omitempty"`
	Similarity float32 `json:"similarity,omitempty"`
}

// ComplianceState enumerates the compliance gate result.
type ComplianceState string

const (
	ComplianceUnchecked ComplianceState = "unchecked"
	ComplianceAllowed   ComplianceState = "allowed"
	ComplianceBlocked   ComplianceState = "blocked"
)

// ComplianceStatus records the gate outcome and the blocking reason, if any.
type ComplianceStatus struct {
	State  ComplianceState `json:"state"`
	Reason string          `json:"reason,omitempty"`
	Policy string          `json:"policy,omitempty"`
}

// Allowed reports whether outreach passed the gate.
func (c ComplianceStatus) Allowed() bool { return c.State == ComplianceAllowed }

// Blocked reports whether outreach was rejected.
func (c ComplianceStatus) Blocked() bool { return c.State == ComplianceBlocked }

// Slot is a proposed meeting window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Proposal is the sequencing result: the message that was sent together with
// the meeting proposal attached to it.
type Proposal struct {
	Key          string    `json:"key"`
	DraftVersion int       `json:"draft_version"`
	To           string    `json:"to"`
	ThreadID     string    `json:"thread_id"`
	MessageID    string    `json:"message_id"`
	Slots        []Slot    `json:"slots,omitempty"`
	ICS          string    `json:"ics,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

// ThreadMessage is one message of an email thread.
type ThreadMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is the conversation the outreach started.
type Thread struct {
	ID         string          `json:"id"`
	ProspectID string          `json:"prospect_id"`
	Messages   []ThreadMessage `json:"messages,omitempty"`
}

// HandoffPacket is the final artifact handed to a human seller.
type HandoffPacket struct {
	ProspectID  string    `json:"prospect_id"`
	Company     Company   `json:"company"`
	Contacts    []Contact `json:"contacts"`
	FitScore    Score     `json:"fit_score"`
	Draft       Draft     `json:"draft"`
	Thread      *Thread   `json:"thread,omitempty"`
	Slots       []Slot    `json:"calendar_slots,omitempty"`
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

// OutcomeKind categorizes the single per-prospect result of a run.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeBlocked   OutcomeKind = "blocked"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the terminal result reported for one prospect.
type Outcome struct {
	ProspectID string         `json:"prospect_id"`
	Kind       OutcomeKind    `json:"kind"`
	Stage      Stage          `json:"stage"`
	Reason     string         `json:"reason,omitempty"`
	Handoff    *HandoffPacket `json:"handoff,omitempty"`
}

// String formats the outcome the way operators read it.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeCompleted:
		return "completed"
	case OutcomeBlocked:
		return fmt.Sprintf("blocked(%s)", o.Reason)
	default:
		return fmt.Sprintf("failed(%s, %s)", o.Stage, o.Reason)
	}
}

// Completed builds a completed outcome carrying the handoff packet.
func Completed(id string, packet *HandoffPacket) Outcome {
	return Outcome{ProspectID: id, Kind: OutcomeCompleted, Stage: StageCurator, Handoff: packet}
}

// Blocked builds a blocked outcome.
func Blocked(id, reason string) Outcome {
	return Outcome{ProspectID: id, Kind: OutcomeBlocked, Stage: StageCurator, Reason: reason}
}

// Failed builds a failed outcome for the stage that could not complete.
func Failed(id string, stage Stage, reason string) Outcome {
	return Outcome{ProspectID: id, Kind: OutcomeFailed, Stage: stage, Reason: reason}
}

// Prospect is the unit of work moving through the agent chain. Agents receive
// a copy and return the next version; the orchestrator commits it.
type Prospect struct {
	ID                string           `json:"id"`
	Company           Company          `json:"company"`
	Stage             Stage            `json:"stage"`
	Facts             map[string]Fact  `json:"facts"`
	Contacts          []Contact        `json:"contacts"`
	FitScore          *Score           `json:"fit_score,omitempty"`
	Qualified         bool             `json:"qualified"`
	Drafts            []Draft          `json:"drafts"`
	Compliance        ComplianceStatus `json:"compliance"`
	Proposal          *Proposal        `json:"proposal,omitempty"`
	Handoff           *HandoffPacket   `json:"handoff,omitempty"`
	Outcome           *Outcome         `json:"outcome,omitempty"`
	EnrichmentPartial bool             `json:"enrichment_partial,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`

	// EnrichmentCoverage is the fraction of enrichment queries answered.
	EnrichmentCoverage float64 `json:"enrichment_coverage,omitempty"`
}

// NewProspect creates a fresh prospect from its seed company.
func NewProspect(c Company) Prospect {
	id := c.ID
	if id == "" {
		id = c.Domain
	}
	return Prospect{
		ID:         id,
		Company:    c,
		Stage:      StageNew,
		Facts:      map[string]Fact{},
		Contacts:   []Contact{},
		Drafts:     []Draft{},
		Compliance: ComplianceStatus{State: ComplianceUnchecked},
	}
}

// Clone returns a deep copy safe for independent mutation.
func (p Prospect) Clone() Prospect {
	c := p
	c.Company.Pains = append([]string(nil), p.Company.Pains...)
	c.Company.Notes = append([]string(nil), p.Company.Notes...)
	c.Facts = make(map[string]Fact, len(p.Facts))
	for k, v := range p.Facts {
		c.Facts[k] = v
	}
	c.Contacts = append([]Contact{}, p.Contacts...)
	c.Drafts = append([]Draft{}, p.Drafts...)
	if p.FitScore != nil {
		s := *p.FitScore
		c.FitScore = &s
	}
	if p.Proposal != nil {
		pr := *p.Proposal
		pr.Slots = append([]Slot(nil), p.Proposal.Slots...)
		c.Proposal = &pr
	}
	if p.Handoff != nil {
		h := *p.Handoff
		h.Contacts = append([]Contact(nil), p.Handoff.Contacts...)
		h.Slots = append([]Slot(nil), p.Handoff.Slots...)
		c.Handoff = &h
	}
	if p.Outcome != nil {
		o := *p.Outcome
		c.Outcome = &o
	}
	return c
}

// LiveFacts returns the facts that have not expired at now. Expired facts stay
// in the map for audit but are invisible to readers.
func (p Prospect) LiveFacts(now time.Time) map[string]Fact {
	live := make(map[string]Fact, len(p.Facts))
	for k, f := range p.Facts {
		if !f.Expired(now) {
			live[k] = f
		}
	}
	return live
}

// FactKeys returns the live fact keys in sorted order.
func (p Prospect) FactKeys(now time.Time) []string {
	live := p.LiveFacts(now)
	keys := make([]string, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LatestDraft returns the most recent committed draft.
func (p Prospect) LatestDraft() (Draft, bool) {
	if len(p.Drafts) == 0 {
		return Draft{}, false
	}
	return p.Drafts[len(p.Drafts)-1], true
}

// DraftVersion returns the version of the latest draft, 0 when none exists.
func (p Prospect) DraftVersion() int {
	d, ok := p.LatestDraft()
	if !ok {
		return 0
	}
	return d.Version
}

// PrimaryContact returns the first contact, if any.
func (p Prospect) PrimaryContact() (Contact, bool) {
	if len(p.Contacts) == 0 {
		return Contact{}, false
	}
	return p.Contacts[0], true
}

// Advance moves the prospect to stage s. Moving backwards or skipping a stage
// is rejected.
func (p *Prospect) Advance(s Stage) error {
	if s != p.Stage.Next() || p.Stage.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrStageOrder, p.Stage, s)
	}
	p.Stage = s
	return nil
}

// Reset returns the prospect to its seed state, keeping the identity.
func (p *Prospect) Reset() {
	*p = NewProspect(p.Company)
}
