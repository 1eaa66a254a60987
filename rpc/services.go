package rpc

import (
	"context"
	"fmt"

	"github.com/hupe1980/prospectmesh/core"
)

// DefaultSearchConfidence applies to hits that carry no confidence.
const DefaultSearchConfidence = 0.7

// SearchClient implements core.Search and core.ContactFinder.
type SearchClient struct{ *Client }

// NewSearchClient creates a search collaborator client.
func NewSearchClient(baseURL string, optFns ...func(o *Options)) *SearchClient {
	return &SearchClient{New("search", baseURL, optFns...)}
}

// Query implements core.Search.
func (s *SearchClient) Query(ctx context.Context, q string, limit int) ([]core.SearchResult, error) {
	var hits []searchHit
	if _, err := s.Call(ctx, "search.query", map[string]any{"q": q, "limit": limit}, &hits); err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(hits))
	for _, h := range hits {
		conf := DefaultSearchConfidence
		if h.Confidence != nil {
			conf = *h.Confidence
		}
		results = append(results, core.SearchResult{
			Text:       h.Text,
			Source:     h.Source,
			Confidence: conf,
			Timestamp:  h.Timestamp.Time,
		})
		if limit > 0 && len(results) == limit {
			break
		}
	}

	return results, nil
}

// FindContacts implements core.ContactFinder.
func (s *SearchClient) FindContacts(ctx context.Context, c core.Company) ([]core.Contact, error) {
	var hits []contactHit
	params := map[string]any{"domain": c.Domain, "company": c.Name, "size": c.Size}
	if _, err := s.Call(ctx, "search.contacts", params, &hits); err != nil {
		return nil, err
	}

	contacts := make([]core.Contact, 0, len(hits))
	for _, h := range hits {
		contacts = append(contacts, core.Contact{
			Email:  h.Email,
			Domain: c.Domain,
			Name:   h.Name,
			Title:  h.Title,
			Source: h.Source,
		})
	}
	return contacts, nil
}

// EmailClient implements core.Email.
type EmailClient struct{ *Client }

// NewEmailClient creates an email collaborator client.
func NewEmailClient(baseURL string, optFns ...func(o *Options)) *EmailClient {
	return &EmailClient{New("email", baseURL, optFns...)}
}

// Send implements core.Email.
func (e *EmailClient) Send(ctx context.Context, req core.SendRequest) (core.SendReceipt, error) {
	var receipt core.SendReceipt
	found, err := e.Call(ctx, "email.send", req, &receipt)
	if err != nil {
		return core.SendReceipt{}, err
	}
	if !found || receipt.MessageID == "" {
		return core.SendReceipt{}, fmt.Errorf("email.send returned no receipt")
	}
	return receipt, nil
}

// Thread implements core.Email. A prospect without messages yields nil.
func (e *EmailClient) Thread(ctx context.Context, prospectID string) (*core.Thread, error) {
	var wire threadWire
	found, err := e.Call(ctx, "email.thread", map[string]any{"prospect_id": prospectID}, &wire)
	if err != nil || !found {
		return nil, err
	}

	thread := &core.Thread{ID: wire.ID, ProspectID: wire.ProspectID}
	for _, m := range wire.Messages {
		from := m.From
		if from == "" {
			from = m.Direction
		}
		thread.Messages = append(thread.Messages, core.ThreadMessage{
			ID:        m.ID,
			From:      from,
			To:        m.To,
			Subject:   m.Subject,
			Body:      m.Body,
			Timestamp: m.SentAt.Time,
		})
	}
	return thread, nil
}

// CalendarClient implements core.Calendar.
type CalendarClient struct{ *Client }

// NewCalendarClient creates a calendar collaborator client.
func NewCalendarClient(baseURL string, optFns ...func(o *Options)) *CalendarClient {
	return &CalendarClient{New("calendar", baseURL, optFns...)}
}

// SuggestSlots implements core.Calendar.
func (c *CalendarClient) SuggestSlots(ctx context.Context, prospectID string) ([]core.Slot, error) {
	var wire []slotWire
	if _, err := c.Call(ctx, "calendar.suggest_slots", map[string]any{"prospect_id": prospectID}, &wire); err != nil {
		return nil, err
	}
	slots := make([]core.Slot, 0, len(wire))
	for _, s := range wire {
		slots = append(slots, core.Slot{Start: s.Start.Time, End: s.End.Time})
	}
	return slots, nil
}

// GenerateICS implements core.Calendar.
func (c *CalendarClient) GenerateICS(ctx context.Context, summary string, slot core.Slot) (string, error) {
	var ics string
	params := map[string]any{
		"summary":   summary,
		"start_iso": Timestamp{slot.Start},
		"end_iso":   Timestamp{slot.End},
	}
	if _, err := c.Call(ctx, "calendar.generate_ics", params, &ics); err != nil {
		return "", err
	}
	return ics, nil
}

// StoreClient implements core.ProspectStore, core.Directory and
// core.HandoffStore against the store collaborator.
type StoreClient struct{ *Client }

// NewStoreClient creates a store collaborator client.
func NewStoreClient(baseURL string, optFns ...func(o *Options)) *StoreClient {
	return &StoreClient{New("store", baseURL, optFns...)}
}

// Get implements core.ProspectStore.
func (s *StoreClient) Get(ctx context.Context, id string) (core.Prospect, error) {
	var p core.Prospect
	found, err := s.Call(ctx, "store.get_prospect", map[string]any{"id": id}, &p)
	if err != nil {
		return core.Prospect{}, err
	}
	if !found {
		return core.Prospect{}, fmt.Errorf("prospect %s: %w", id, core.ErrNotFound)
	}
	if p.Facts == nil {
		p.Facts = map[string]core.Fact{}
	}
	return p, nil
}

// Put implements core.ProspectStore.
func (s *StoreClient) Put(ctx context.Context, p core.Prospect) error {
	_, err := s.Call(ctx, "store.save_prospect", map[string]any{"prospect": p}, nil)
	return err
}

// List implements core.ProspectStore.
func (s *StoreClient) List(ctx context.Context) ([]core.Prospect, error) {
	var ps []core.Prospect
	if _, err := s.Call(ctx, "store.list_prospects", nil, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Delete implements core.ProspectStore.
func (s *StoreClient) Delete(ctx context.Context, id string) error {
	_, err := s.Call(ctx, "store.delete_prospect", map[string]any{"id": id}, nil)
	return err
}

// Reset implements core.ProspectStore.
func (s *StoreClient) Reset(ctx context.Context) error {
	_, err := s.Call(ctx, "store.clear_all", nil, nil)
	return err
}

type contactWire struct {
	core.Contact
	ProspectID string `json:"prospect_id,omitempty"`
}

// ListContacts implements core.Directory.
func (s *StoreClient) ListContacts(ctx context.Context, domain string) ([]core.Contact, error) {
	var wire []contactWire
	if _, err := s.Call(ctx, "store.list_contacts_by_domain", map[string]any{"domain": domain}, &wire); err != nil {
		return nil, err
	}
	contacts := make([]core.Contact, 0, len(wire))
	for _, c := range wire {
		contacts = append(contacts, c.Contact)
	}
	return contacts, nil
}

// SaveContact implements core.Directory.
func (s *StoreClient) SaveContact(ctx context.Context, prospectID string, c core.Contact) error {
	_, err := s.Call(ctx, "store.save_contact", map[string]any{"contact": contactWire{Contact: c, ProspectID: prospectID}}, nil)
	return err
}

// SaveHandoff implements core.HandoffStore.
func (s *StoreClient) SaveHandoff(ctx context.Context, packet core.HandoffPacket) error {
	_, err := s.Call(ctx, "store.save_handoff", map[string]any{"packet": packet}, nil)
	return err
}

var (
	_ core.Search        = (*SearchClient)(nil)
	_ core.ContactFinder = (*SearchClient)(nil)
	_ core.Email         = (*EmailClient)(nil)
	_ core.Calendar      = (*CalendarClient)(nil)
	_ core.ProspectStore = (*StoreClient)(nil)
	_ core.Directory     = (*StoreClient)(nil)
	_ core.HandoffStore  = (*StoreClient)(nil)
)
