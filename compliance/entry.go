package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/prospectmesh/dedup"
)

// EntryType classifies what a suppression entry matches.
type EntryType string

const (
	EntryCompany EntryType = "company"
	EntryDomain  EntryType = "domain"
	EntryEmail   EntryType = "email"
)

// lookupOrder is the order in which entry types are consulted.
var lookupOrder = []EntryType{EntryCompany, EntryDomain, EntryEmail}

// ParseEntryType validates s.
func ParseEntryType(s string) (EntryType, error) {
	switch t := EntryType(strings.ToLower(strings.TrimSpace(s))); t {
	case EntryCompany, EntryDomain, EntryEmail:
		return t, nil
	default:
		return "", fmt.Errorf("unknown suppression type %q", s)
	}
}

// Entry forbids outreach to a company, domain or mailbox. Entries are
// immutable once recorded; an expired entry is treated as absent.
type Entry struct {
	Type      EntryType  `json:"type" yaml:"type"`
	Value     string     `json:"value" yaml:"value"`
	Reason    string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Expired reports whether the entry no longer applies at now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// BlockReason is the entry reason or "<type> suppressed".
func (e Entry) BlockReason() string {
	if r := strings.TrimSpace(e.Reason); r != "" {
		return r
	}
	return string(e.Type) + " suppressed"
}

// Key is the normalized lookup value.
func (e Entry) Key() string {
	return normalize(e.Type, e.Value)
}

func (e Entry) validate() error {
	if _, err := ParseEntryType(string(e.Type)); err != nil {
		return err
	}
	if e.Key() == "" {
		return fmt.Errorf("suppression %s entry has empty value", e.Type)
	}
	return nil
}

func normalize(t EntryType, v string) string {
	switch t {
	case EntryEmail:
		return dedup.NormalizeEmail(v)
	case EntryDomain:
		return dedup.NormalizeDomain(v)
	default:
		return strings.ToLower(strings.TrimSpace(v))
	}
}
