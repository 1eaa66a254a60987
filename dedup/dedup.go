package dedup

import (
	"fmt"
	"strings"

	"github.com/hupe1980/prospectmesh/core"
)

// Decision is the result of Admit.
type Decision struct {
	Accepted   bool
	MatchedKey string
}

// Accepted reports a new, admissible fingerprint.
func Accepted() Decision { return Decision{Accepted: true} }

// Rejected reports a duplicate of key.
func Rejected(key string) Decision { return Decision{MatchedKey: key} }

// NormalizeEmail lower-cases and trims the address and strips a "+tag" from
// the local part. Inputs without "@" are returned lower-cased and trimmed.
func NormalizeEmail(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(e, "@")
	if at < 0 {
		return e
	}
	local, domain := e[:at], e[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	return local + "@" + NormalizeDomain(domain)
}

// NormalizeDomain lower-cases the domain, strips scheme, path, a leading
// "www." and any trailing dot.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	d = strings.TrimPrefix(d, "www.")
	return d
}

// EmailDomain returns the normalized domain part of an address.
func EmailDomain(email string) string {
	e := NormalizeEmail(email)
	if at := strings.LastIndex(e, "@"); at >= 0 {
		return e[at+1:]
	}
	return ""
}

// Fingerprint is the dedup key of a contact: its normalized email, or the
// normalized domain for contacts without an address.
func Fingerprint(c core.Contact) string {
	if strings.TrimSpace(c.Email) != "" {
		return "email:" + NormalizeEmail(c.Email)
	}
	return "domain:" + NormalizeDomain(c.Domain)
}

// Admit decides whether candidate is new relative to existing. The existing
// set holds fingerprints as produced by Fingerprint.
func Admit(candidate core.Contact, existing map[string]struct{}) Decision {
	key := Fingerprint(candidate)
	if _, ok := existing[key]; ok {
		return Rejected(key)
	}
	return Accepted()
}

// Set builds the fingerprint set of contacts.
func Set(contacts []core.Contact) map[string]struct{} {
	set := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		set[Fingerprint(c)] = struct{}{}
	}
	return set
}

// ProspectKey fingerprints a company so one run never processes it twice.
// The normalized domain wins over the id since ids are assigned per source.
func ProspectKey(c core.Company) string {
	if d := NormalizeDomain(c.Domain); d != "" {
		return "domain:" + d
	}
	return "id:" + strings.ToLower(strings.TrimSpace(c.ID))
}

// ProspectID is the store id of a company: its explicit id, else the
// normalized domain, else the lowercased name.
func ProspectID(c core.Company) string {
	if id := strings.TrimSpace(c.ID); id != "" {
		return id
	}
	if d := NormalizeDomain(c.Domain); d != "" {
		return d
	}
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// SendKey is the idempotency key of one outbound message.
func SendKey(prospectID string, draftVersion int) string {
	return fmt.Sprintf("%s:v%d", prospectID, draftVersion)
}
