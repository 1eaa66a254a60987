package rpc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are accepted for collaborator timestamps, which are not
// always zoned.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp decodes ISO-8601 timestamps with or without zone (UTC assumed).
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

type searchHit struct {
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	Timestamp  Timestamp `json:"ts"`
	Confidence *float64  `json:"confidence"`
}

type contactHit struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

type slotWire struct {
	Start Timestamp `json:"start_iso"`
	End   Timestamp `json:"end_iso"`
}

type messageWire struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Direction string    `json:"direction"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	SentAt    Timestamp `json:"sent_at"`
}

type threadWire struct {
	ID         string        `json:"id"`
	ProspectID string        `json:"prospect_id"`
	Messages   []messageWire `json:"messages"`
}
