package compliance

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, entries ...Entry) *Engine {
	t.Helper()
	e := New(func(o *Options) { o.Clock = func() time.Time { return now } })
	require.NoError(t, e.Add(entries...))
	return e
}

func acme(draftBody string) core.Prospect {
	p := core.NewProspect(core.Company{ID: "acme", Name: "Acme", Domain: "acme.com"})
	p.Contacts = []core.Contact{{Email: "jane@acme.com", Domain: "acme.com"}}
	if draftBody != "" {
		p.Drafts = []core.Draft{{Version: 1, Subject: "Hello", Body: draftBody}}
	}
	return p
}

func TestCheck_AllowedWithFooter(t *testing.T) {
	e := newEngine(t)
	p := acme("We help teams.")
	p.Drafts[0].Body += e.Footer(p)

	v := e.Check(p)
	assert.True(t, v.Allowed, v.Reason)
	assert.Equal(t, "can-spam", v.Policy)
}

func TestCheck_DomainSuppressed(t *testing.T) {
	e := newEngine(t, Entry{Type: EntryDomain, Value: "acme.com"})
	p := acme("We help teams.")
	p.Drafts[0].Body += e.Footer(p)

	v := e.Check(p)
	assert.False(t, v.Allowed)
	assert.Equal(t, "domain suppressed", v.Reason)
}

func TestCheck_DomainSuppressionMatchesContactDomains(t *testing.T) {
	e := newEngine(t, Entry{Type: EntryDomain, Value: "acme.com"})
	p := core.NewProspect(core.Company{ID: "sub", Domain: "subsidiary.io"})
	p.Contacts = []core.Contact{{Email: "ops@ACME.com"}}

	v := e.Check(p)
	assert.False(t, v.Allowed)
	assert.Equal(t, "domain suppressed", v.Reason)
}

func TestCheck_ExpiredEntryDoesNotBlock(t *testing.T) {
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	e := newEngine(t, Entry{Type: EntryDomain, Value: "acme.com", ExpiresAt: &past})
	p := acme("")
	assert.True(t, e.Check(p).Allowed)

	e2 := newEngine(t, Entry{Type: EntryDomain, Value: "acme.com", ExpiresAt: &future})
	assert.False(t, e2.Check(p).Allowed)

	// expired entries are retained, not deleted eagerly
	assert.Len(t, e.List(), 1)
}

func TestCheck_LookupOrderCompanyFirst(t *testing.T) {
	e := newEngine(t,
		Entry{Type: EntryEmail, Value: "jane+sales@acme.com", Reason: "bounced"},
		Entry{Type: EntryDomain, Value: "www.acme.com", Reason: "legal hold"},
		Entry{Type: EntryCompany, Value: "ACME", Reason: "existing customer"},
	)

	v := e.Check(acme(""))
	assert.Equal(t, "existing customer", v.Reason)

	require.True(t, e.Remove(EntryCompany, "acme"))
	assert.Equal(t, "legal hold", e.Check(acme("")).Reason)

	require.True(t, e.Remove(EntryDomain, "acme.com"))
	assert.Equal(t, "bounced", e.Check(acme("")).Reason)

	assert.False(t, e.Remove(EntryDomain, "acme.com"))
}

func TestCheck_MissingFooterBlocks(t *testing.T) {
	e := newEngine(t)
	v := e.Check(acme("We help teams."))
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "policy can-spam")
}

func TestCheck_ForbiddenPhraseBlocks(t *testing.T) {
	e := newEngine(t)
	p := acme("Guaranteed results for your team.")
	p.Drafts[0].Body += e.Footer(p)

	v := e.Check(p)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "forbidden phrase")
}

func TestCheck_UnknownRegionUsesStrictest(t *testing.T) {
	e := newEngine(t)
	p := core.NewProspect(core.Company{ID: "x", Domain: "example.xyz"})
	p.Drafts = []core.Draft{{Version: 1, Subject: "s", Body: "Hello"}}

	assert.Equal(t, StrictPolicyName, e.PolicyFor(p).Name)

	// a regional footer is not enough for the strict policy
	p.Drafts[0].Body = "Hello" + DefaultPolicies(DefaultSender())[0].Footer
	assert.False(t, e.Check(p).Allowed)

	p.Drafts[0].Body = "Hello" + e.Footer(p)
	v := e.Check(p)
	assert.True(t, v.Allowed, v.Reason)
	assert.Equal(t, StrictPolicyName, v.Policy)
}

func TestDefaultPolicies_FootersSatisfyThemselves(t *testing.T) {
	policies := DefaultPolicies(DefaultSender())
	for _, p := range append(policies, Strictest(policies)) {
		reason, ok := p.Verify("Hi there." + p.Footer)
		assert.True(t, ok, "%s: %s", p.Name, reason)
	}
}

func TestDetectRegion(t *testing.T) {
	cases := map[string]core.Company{
		RegionUS: {Domain: "acme.com"},
		RegionCA: {Domain: "shop.ca"},
		RegionUK: {Domain: "https://www.tesco.co.uk/"},
		RegionEU: {Domain: "zalando.de"},
		"":       {Domain: "startup.io"},
	}
	for want, c := range cases {
		assert.Equal(t, want, DetectRegion(c), c.Domain)
	}
	assert.Equal(t, RegionUK, DetectRegion(core.Company{Domain: "acme.com", Region: "gb"}))
}

func TestAdd_RejectsInvalidAndKeepsFirst(t *testing.T) {
	e := newEngine(t)
	assert.Error(t, e.Add(Entry{Type: "phone", Value: "123"}))
	assert.Error(t, e.Add(Entry{Type: EntryEmail, Value: "  "}))

	require.NoError(t, e.Add(Entry{Type: EntryDomain, Value: "acme.com", Reason: "first"}))
	require.NoError(t, e.Add(Entry{Type: EntryDomain, Value: "ACME.com", Reason: "second"}))
	entries := e.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Reason)
}

func TestEngine_ConcurrentChecksDuringReplace(t *testing.T) {
	e := newEngine(t)
	p := acme("")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v := e.Check(p)
			if !v.Allowed {
				assert.Equal(t, "domain suppressed", v.Reason)
			}
		}()
		go func(i int) {
			defer wg.Done()
			entries := []Entry{{Type: EntryDomain, Value: fmt.Sprintf("other%d.com", i)}}
			if i%2 == 0 {
				entries = append(entries, Entry{Type: EntryDomain, Value: "acme.com"})
			}
			assert.NoError(t, e.Replace(entries))
		}(i)
	}
	wg.Wait()
}
