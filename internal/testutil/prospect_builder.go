package testutil

import (
	"time"

	"github.com/hupe1980/prospectmesh/core"
)

// ProspectBuilder provides a fluent helper for constructing prospects.
// Example:
//
//	p := NewProspectBuilder("acme").Domain("acme.com").Contact("jane@acme.com").Draft("Hi", "Body").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type ProspectBuilder struct {
	p core.Prospect
}

// NewProspectBuilder creates a builder for a SaaS company with 500 employees.
func NewProspectBuilder(id string) *ProspectBuilder {
	return &ProspectBuilder{p: core.NewProspect(core.Company{
		ID:       id,
		Name:     id,
		Domain:   id + ".com",
		Industry: "SaaS",
		Size:     500,
	})}
}

// Name sets the company name (chainable).
func (b *ProspectBuilder) Name(n string) *ProspectBuilder { b.p.Company.Name = n; return b }

// Domain sets the company domain (chainable).
func (b *ProspectBuilder) Domain(d string) *ProspectBuilder { b.p.Company.Domain = d; return b }

// Industry sets the company industry (chainable).
func (b *ProspectBuilder) Industry(i string) *ProspectBuilder { b.p.Company.Industry = i; return b }

// Size sets the employee count (chainable).
func (b *ProspectBuilder) Size(n int) *ProspectBuilder { b.p.Company.Size = n; return b }

// Region sets the explicit region (chainable).
func (b *ProspectBuilder) Region(r string) *ProspectBuilder { b.p.Company.Region = r; return b }

// Pains appends seed pains (chainable).
func (b *ProspectBuilder) Pains(pains ...string) *ProspectBuilder {
	b.p.Company.Pains = append(b.p.Company.Pains, pains...)
	return b
}

// Stage sets the last completed stage (chainable).
func (b *ProspectBuilder) Stage(s core.Stage) *ProspectBuilder { b.p.Stage = s; return b }

// Fact adds a fact acquired at acquired with the given TTL (chainable).
func (b *ProspectBuilder) Fact(key, value string, confidence float64, acquired time.Time, ttl time.Duration) *ProspectBuilder {
	b.p.Facts[key] = core.Fact{Value: value, Confidence: confidence, AcquiredAt: acquired, TTL: ttl, Source: "test"}
	return b
}

// Contact appends a contact on the company domain (chainable).
func (b *ProspectBuilder) Contact(email string) *ProspectBuilder {
	b.p.Contacts = append(b.p.Contacts, core.Contact{Email: email, Domain: b.p.Company.Domain, Source: "test"})
	return b
}

// Score sets the fit score and marks the prospect qualified (chainable).
func (b *ProspectBuilder) Score(v float64) *ProspectBuilder {
	b.p.FitScore = &core.Score{Value: v, Confidence: 1}
	b.p.Qualified = true
	return b
}

// Draft appends the next draft version (chainable).
func (b *ProspectBuilder) Draft(subject, body string) *ProspectBuilder {
	b.p.Drafts = append(b.p.Drafts, core.Draft{Version: b.p.DraftVersion() + 1, Subject: subject, Body: body})
	return b
}

// Allowed marks the compliance gate as passed (chainable).
func (b *ProspectBuilder) Allowed() *ProspectBuilder {
	b.p.Compliance = core.ComplianceStatus{State: core.ComplianceAllowed, Policy: "can-spam"}
	return b
}

// Blocked marks the compliance gate as failed with reason (chainable).
func (b *ProspectBuilder) Blocked(reason string) *ProspectBuilder {
	b.p.Compliance = core.ComplianceStatus{State: core.ComplianceBlocked, Reason: reason}
	return b
}

// Build returns a copy of the assembled prospect.
func (b *ProspectBuilder) Build() core.Prospect { return b.p.Clone() }
