package core

import (
	"context"
	"time"
)

// SearchResult is one hit returned by the search collaborator.
type SearchResult struct {
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"ts"`
}

// Search answers free-text queries about a company.
type Search interface {
	Query(ctx context.Context, q string, limit int) ([]SearchResult, error)
}

// ContactFinder discovers decision makers of a company. Search collaborators
// may implement it in addition to Search.
type ContactFinder interface {
	FindContacts(ctx context.Context, c Company) ([]Contact, error)
}

// SendRequest is an outbound email. IdempotencyKey lets the email service
// drop duplicates of the same send.
type SendRequest struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	ProspectID     string `json:"prospect_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	ICS            string `json:"ics,omitempty"`
}

// SendReceipt identifies a delivered message.
type SendReceipt struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
}

// Email sends messages and reads back the resulting threads.
type Email interface {
	Send(ctx context.Context, req SendRequest) (SendReceipt, error)
	Thread(ctx context.Context, prospectID string) (*Thread, error)
}

// Calendar proposes meeting windows and renders invitations.
type Calendar interface {
	SuggestSlots(ctx context.Context, prospectID string) ([]Slot, error)
	GenerateICS(ctx context.Context, summary string, slot Slot) (string, error)
}

// Directory keeps contacts known across prospects of the same domain so that
// discovery never proposes the same mailbox twice.
type Directory interface {
	ListContacts(ctx context.Context, domain string) ([]Contact, error)
	SaveContact(ctx context.Context, prospectID string, c Contact) error
}

// HandoffStore persists finished handoff packets.
type HandoffStore interface {
	SaveHandoff(ctx context.Context, packet HandoffPacket) error
}

// HealthChecker is implemented by collaborators that report their health.
type HealthChecker interface {
	Health(ctx context.Context) error
}
