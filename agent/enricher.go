package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/rpc"
)

type enrichmentQuery struct {
	key   string
	query string
}

func enrichmentQueries(c core.Company) []enrichmentQuery {
	return []enrichmentQuery{
		{key: "cx", query: fmt.Sprintf("%s customer experience", c.Name)},
		{key: "challenges", query: strings.TrimSpace(fmt.Sprintf("%s %s challenges", c.Name, c.Industry))},
		{key: "support", query: fmt.Sprintf("%s support contact", c.Domain)},
	}
}

// Enricher asks the search collaborator about the company and merges the
// results as facts. Queries answered with a collaborator error leave the
// enrichment partial; transport failures are retried.
func Enricher(opts Options) core.AgentFunc {
	return func(ctx context.Context, ac *core.AgentContext, p core.Prospect) (core.Prospect, error) {
		queries := enrichmentQueries(p.Company)
		if ac.Search == nil {
			ac.LogWarn("enricher skipped prospect_id=%s: no search collaborator", p.ID)
			p.EnrichmentPartial = true
			p.EnrichmentCoverage = 0
			return p, nil
		}
		if p.Facts == nil {
			p.Facts = map[string]core.Fact{}
		}

		limit := opts.ResultsPerQuery
		if limit <= 0 {
			limit = 2
		}

		answered := 0
		merged := 0
		for _, q := range queries {
			results, err := ac.Search.Query(ctx, q.query, limit)
			if err != nil {
				if degradable(err) {
					ac.LogWarn("enrichment query failed prospect_id=%s query=%q: %v", p.ID, q.query, err)
					continue
				}
				return p, classify(core.StageEnricher, "search failed", err)
			}
			answered++

			now := ac.Now()
			for i, r := range results {
				if i == limit {
					break
				}
				if strings.TrimSpace(r.Text) == "" {
					continue
				}
				f := core.Fact{
					Value:      r.Text,
					Confidence: clampConfidence(r.Confidence, rpc.DefaultSearchConfidence),
					AcquiredAt: now,
					TTL:        opts.FactTTL,
					Source:     r.Source,
				}
				if mergeFact(p.Facts, fmt.Sprintf("%s.%d", q.key, i), f, now) {
					merged++
				}
			}
		}

		p.EnrichmentCoverage = float64(answered) / float64(len(queries))
		p.EnrichmentPartial = answered < len(queries)

		ac.LogDebug("enricher merged facts prospect_id=%s merged=%d coverage=%.2f", p.ID, merged, p.EnrichmentCoverage)
		return p, nil
	}
}
