package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind categorizes what a pipeline event reports.
type EventKind string

const (
	// EventToken carries one streamed LLM fragment of a draft being written.
	EventToken EventKind = "token"
	// EventStage reports a committed stage transition.
	EventStage EventKind = "stage"
	// EventAgentError reports a failed agent attempt (retryable or not).
	EventAgentError EventKind = "agent_error"
	// EventPolicyVerdict reports the compliance decision for a prospect.
	EventPolicyVerdict EventKind = "policy_verdict"
	// EventOutcome reports the terminal outcome of a prospect.
	EventOutcome EventKind = "prospect_outcome"
	// EventRunComplete is the last event of a run.
	EventRunComplete EventKind = "run_complete"
)

// Event is the unit streamed to subscribers of a pipeline run. After emission
// it should be treated as immutable. It captures:
//   - Correlation (RunID, ProspectID, ID, Author)
//   - The stage and draft version it belongs to
//   - A free-form message plus optional payload
//
// Timestamp uses a native time.Time (UTC).
type Event struct {
	ID           string            `json:"id"`
	RunID        string            `json:"run_id"`
	Kind         EventKind         `json:"kind"`
	ProspectID   string            `json:"prospect_id,omitempty"`
	Author       string            `json:"author,omitempty"`
	Stage        Stage             `json:"stage"`
	DraftVersion int               `json:"draft_version,omitempty"`
	Text         string            `json:"text,omitempty"`
	Retryable    *bool             `json:"retryable,omitempty"`
	Outcome      *Outcome          `json:"outcome,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a bare event of the given kind bound to a run.
func NewEvent(runID string, kind EventKind) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenEvent creates a token fragment event for the draft version being
// generated.
func NewTokenEvent(runID, prospectID string, draftVersion int, text string) Event {
	e := NewEvent(runID, EventToken)
	e.ProspectID = prospectID
	e.Author = StageWriter.String()
	e.Stage = StageWriter
	e.DraftVersion = draftVersion
	e.Text = text
	return e
}

// NewStageEvent reports that prospectID committed stage.
func NewStageEvent(runID, prospectID string, stage Stage) Event {
	e := NewEvent(runID, EventStage)
	e.ProspectID = prospectID
	e.Author = stage.String()
	e.Stage = stage
	return e
}

// NewAgentErrorEvent records a failed agent attempt.
func NewAgentErrorEvent(runID, prospectID string, stage Stage, err error) Event {
	e := NewEvent(runID, EventAgentError)
	e.ProspectID = prospectID
	e.Author = stage.String()
	e.Stage = stage
	e.Text = err.Error()
	retryable := IsTransient(err)
	e.Retryable = &retryable
	return e
}

// NewVerdictEvent records a compliance decision.
func NewVerdictEvent(runID, prospectID string, status ComplianceStatus) Event {
	e := NewEvent(runID, EventPolicyVerdict)
	e.ProspectID = prospectID
	e.Author = StageCompliance.String()
	e.Stage = StageCompliance
	e.Text = string(status.State)
	e.Metadata = map[string]string{"reason": status.Reason, "policy": status.Policy}
	return e
}

// NewOutcomeEvent records the terminal outcome of a prospect.
func NewOutcomeEvent(runID string, o Outcome) Event {
	e := NewEvent(runID, EventOutcome)
	e.ProspectID = o.ProspectID
	e.Author = "engine"
	e.Stage = o.Stage
	e.Text = o.String()
	e.Outcome = &o
	return e
}

// NewRunCompleteEvent marks the end of a run.
func NewRunCompleteEvent(runID string) Event {
	e := NewEvent(runID, EventRunComplete)
	e.Author = "engine"
	return e
}

// NewID generates a new unique identifier for runs, events and messages.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment that will be
// followed by more fragments of the same draft.
func (e Event) IsPartial() bool { return e.Kind == EventToken }

// IsFinal reports whether this event ends the run stream.
func (e Event) IsFinal() bool { return e.Kind == EventRunComplete }

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
// Useful for metrics & numeric serialization paths.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
