package agent

import (
	"context"
	"net/mail"
	"strings"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"
	"github.com/hupe1980/prospectmesh/rpc"
)

// Contactor discovers decision makers and admits them through the dedup
// engine. Without any contact a role mailbox fallback is used.
func Contactor(_ Options) core.AgentFunc {
	return func(ctx context.Context, ac *core.AgentContext, p core.Prospect) (core.Prospect, error) {
		domain := dedup.NormalizeDomain(p.Company.Domain)
		existing := dedup.Set(p.Contacts)

		admit := func(c core.Contact) bool {
			if d := dedup.Admit(c, existing); !d.Accepted {
				ac.LogDebug("contact rejected prospect_id=%s key=%s", p.ID, d.MatchedKey)
				return false
			}
			existing[dedup.Fingerprint(c)] = struct{}{}
			p.Contacts = append(p.Contacts, c)
			return true
		}

		if ac.Directory != nil {
			known, err := ac.Directory.ListContacts(ctx, domain)
			if err != nil {
				return p, classify(core.StageContactor, "directory lookup failed", err)
			}
			for _, c := range known {
				if c, ok := validContact(c, domain); ok {
					admit(c)
				}
			}
		}

		candidates, err := discover(ctx, ac, p.Company)
		if err != nil {
			return p, err
		}

		var added []core.Contact
		for _, c := range candidates {
			c, ok := validContact(c, domain)
			if !ok {
				ac.LogDebug("contact discarded prospect_id=%s email=%q", p.ID, c.Email)
				continue
			}
			if admit(c) {
				added = append(added, c)
			}
		}

		if len(p.Contacts) == 0 {
			fallback := core.Contact{
				Email:  "contact@" + domain,
				Domain: domain,
				Name:   "Customer Success at " + p.Company.Name,
				Source: "fallback",
			}
			if admit(fallback) {
				added = append(added, fallback)
			}
		}

		if ac.Directory != nil {
			for _, c := range added {
				if err := ac.Directory.SaveContact(ctx, p.ID, c); err != nil {
					return p, classify(core.StageContactor, "directory save failed", err)
				}
			}
		}

		return p, nil
	}
}

// discover asks the contact finder for candidates and falls back to role
// based guesses when it is unavailable.
func discover(ctx context.Context, ac *core.AgentContext, c core.Company) ([]core.Contact, error) {
	finder, ok := ac.Search.(core.ContactFinder)
	if !ok {
		return roleContacts(c), nil
	}

	found, err := finder.FindContacts(ctx, c)
	if err != nil {
		if rpc.IsUnknownMethod(err) || degradable(err) {
			ac.LogDebug("contact discovery degraded company=%s: %v", c.Name, err)
			return roleContacts(c), nil
		}
		return nil, classify(core.StageContactor, "contact discovery failed", err)
	}
	if len(found) == 0 {
		return roleContacts(c), nil
	}
	return found, nil
}

// roleTitles returns the decision makers worth addressing at a company of
// the given size.
func roleTitles(size int) []string {
	switch {
	case size < 100:
		return []string{"CEO", "Head of Customer Success"}
	case size < 1000:
		return []string{"VP Customer Experience", "Director of CX"}
	default:
		return []string{"Chief Customer Officer", "SVP Customer Success", "VP CX Analytics"}
	}
}

func roleContacts(c core.Company) []core.Contact {
	domain := dedup.NormalizeDomain(c.Domain)
	titles := roleTitles(c.Size)
	out := make([]core.Contact, 0, len(titles))
	for _, title := range titles {
		out = append(out, core.Contact{
			Email:  roleMailbox(title) + "@" + domain,
			Domain: domain,
			Name:   title + " at " + c.Name,
			Title:  title,
			Source: "role",
		})
	}
	return out
}

// roleMailbox derives a local part from a title: "VP Customer Experience"
// becomes "vp.customer.experien".
func roleMailbox(title string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if w == "of" {
			continue
		}
		words = append(words, w)
	}
	local := strings.Join(words, ".")
	if len(local) > 20 {
		local = local[:20]
	}
	return strings.Trim(local, ".")
}

// validContact checks the address syntax and that it belongs to domain.
func validContact(c core.Contact, domain string) (core.Contact, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(c.Email))
	if err != nil {
		return c, false
	}
	c.Email = strings.ToLower(addr.Address)
	got := dedup.EmailDomain(c.Email)
	if got != domain && !strings.HasSuffix(got, "."+domain) {
		return c, false
	}
	c.Domain = domain
	if c.Name == "" {
		c.Name = addr.Name
	}
	return c, true
}
