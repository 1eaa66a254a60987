package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/prospectmesh/compliance"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"
	"github.com/hupe1980/prospectmesh/vector"
)

// Vector record metadata keys shared by the agents and the seed importer.
const (
	MetaKind       = "kind"
	MetaProspectID = "prospect_id"
	MetaFactKey    = "fact_key"
	MetaText       = "text"
	MetaVersion    = "draft_version"

	KindCompany   = "company"
	KindKnowledge = "knowledge"
	KindDraft     = "draft"
)

const seedConfidence = 0.9

// Hunter normalizes the company identity, turns seed pains and notes into
// facts and looks up similar known records in the vector index.
func Hunter(opts Options) core.AgentFunc {
	return func(ctx context.Context, ac *core.AgentContext, p core.Prospect) (core.Prospect, error) {
		domain := dedup.NormalizeDomain(p.Company.Domain)
		if err := validDomain(domain); err != nil {
			return p, core.NewTerminalError(core.StageHunter, "malformed company identity", err)
		}
		p.Company.Domain = domain
		if strings.TrimSpace(p.Company.Name) == "" {
			p.Company.Name = domain
		}
		if p.ID == "" {
			p.ID = p.Company.ID
		}
		if p.ID == "" {
			p.ID = domain
		}
		p.Company.Region = compliance.DetectRegion(p.Company)
		if p.Facts == nil {
			p.Facts = map[string]core.Fact{}
		}

		now := ac.Now()
		for i, pain := range p.Company.Pains {
			mergeFact(p.Facts, fmt.Sprintf("pain.%d", i), core.Fact{
				Value: pain, Confidence: seedConfidence, AcquiredAt: now, TTL: 2 * opts.FactTTL, Source: "seed",
			}, now)
		}
		for i, note := range p.Company.Notes {
			mergeFact(p.Facts, fmt.Sprintf("note.%d", i), core.Fact{
				Value: note, Confidence: 0.8, AcquiredAt: now, TTL: 2 * opts.FactTTL, Source: "seed",
			}, now)
		}

		if ac.Embedder == nil || ac.Index == nil {
			return p, nil
		}

		vec, err := embed(ctx, ac, profileText(p.Company))
		if err != nil {
			return p, classify(core.StageHunter, "embedding failed", err)
		}

		k := opts.SimilarityK
		if k <= 0 {
			k = 5
		}
		// One extra hit covers the prospect's own profile record.
		hits, err := ac.Index.Search(ctx, vec, k+1)
		if err != nil {
			return p, core.NewEngineFault("vector", err)
		}

		added := 0
		for _, h := range hits {
			if added == k || h.Score < opts.SimilarityThreshold {
				break
			}
			if h.Metadata[MetaProspectID] == p.ID || h.Metadata[MetaKind] == KindDraft {
				continue
			}
			key := h.Metadata[MetaFactKey]
			if key == "" || h.Metadata[MetaProspectID] != "" {
				key = "similar." + h.ID
			}
			value := h.Metadata[MetaText]
			if value == "" {
				value = h.ID
			}
			mergeFact(p.Facts, key, core.Fact{
				Value:      value,
				Confidence: clampConfidence(float64(h.Score), 0),
				AcquiredAt: now,
				TTL:        opts.FactTTL,
				Source:     "vector",
			}, now)
			added++
		}

		meta := map[string]string{
			MetaKind:       KindCompany,
			MetaProspectID: p.ID,
			MetaText:       fmt.Sprintf("%s (%s, %d employees)", p.Company.Name, p.Company.Industry, p.Company.Size),
		}
		if err := ac.Index.Insert(ctx, "company:"+p.ID, vec, meta); err != nil {
			return p, core.NewEngineFault("vector", err)
		}

		ac.LogDebug("hunter matched records prospect_id=%s hits=%d facts=%d", p.ID, added, len(p.Facts))
		return p, nil
	}
}

func validDomain(d string) error {
	switch {
	case d == "":
		return fmt.Errorf("domain is required")
	case strings.ContainsAny(d, " \t@"):
		return fmt.Errorf("invalid domain %q", d)
	case !strings.Contains(d, ".") || strings.HasPrefix(d, ".") || strings.Contains(d, ".."):
		return fmt.Errorf("invalid domain %q", d)
	}
	return nil
}

func profileText(c core.Company) string {
	parts := []string{c.Name, c.Industry}
	parts = append(parts, c.Pains...)
	parts = append(parts, c.Notes...)
	return strings.Join(parts, " ")
}

// embed returns the normalized embedding of text.
func embed(ctx context.Context, ac *core.AgentContext, text string) ([]float32, error) {
	vec, err := ac.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return vector.Normalize(vec)
}
