package agent

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/hupe1980/prospectmesh/core"
)

var (
	targetIndustries = map[string]bool{
		"saas": true, "fintech": true, "e-commerce": true, "healthcare tech": true,
	}

	painKeywords = []string{"customer retention", "nps", "support efficiency", "personalization"}
)

// FitScore is the deterministic qualification function. facts must already be
// filtered to live facts. The same inputs always yield the same score.
func FitScore(c core.Company, facts map[string]core.Fact, contacts []core.Contact) core.Score {
	var score float64

	if targetIndustries[strings.ToLower(strings.TrimSpace(c.Industry))] {
		score += 0.3
	} else {
		score += 0.1
	}

	switch {
	case c.Size >= 100 && c.Size <= 5000:
		score += 0.2
	case c.Size > 5000:
		score += 0.1
	default:
		score += 0.05
	}

	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var text strings.Builder
	for _, pain := range c.Pains {
		text.WriteString(strings.ToLower(pain))
		text.WriteByte('\n')
	}
	var confSum float64
	for _, k := range keys {
		text.WriteString(strings.ToLower(facts[k].Value))
		text.WriteByte('\n')
		confSum += facts[k].Confidence
	}

	matches := 0
	for _, kw := range painKeywords {
		if strings.Contains(text.String(), kw) {
			matches++
		}
	}
	score += math.Min(0.3, 0.1*float64(matches))
	score += math.Min(0.2, 0.05*float64(len(keys)))

	confidence := 0.5
	if len(keys) > 0 {
		confidence = confSum / float64(len(keys))
		score += confidence * 0.2
	}

	if onlyFallback(contacts) {
		confidence *= 0.8
	}

	return core.Score{Value: math.Min(1, score), Confidence: confidence}
}

func onlyFallback(contacts []core.Contact) bool {
	if len(contacts) == 0 {
		return true
	}
	for _, c := range contacts {
		if c.Source != "fallback" {
			return false
		}
	}
	return true
}

// Scorer replaces the fit score and decides qualification.
func Scorer(opts Options) core.AgentFunc {
	return func(_ context.Context, ac *core.AgentContext, p core.Prospect) (core.Prospect, error) {
		if p.EnrichmentPartial && opts.PartialFacts == SuppressPartial {
			ac.LogInfo("score suppressed prospect_id=%s coverage=%.2f", p.ID, p.EnrichmentCoverage)
			p.Qualified = p.FitScore != nil && p.FitScore.Value >= opts.MinFitScore
			return p, nil
		}

		s := FitScore(p.Company, p.LiveFacts(ac.Now()), p.Contacts)
		if p.EnrichmentPartial {
			s.Confidence *= p.EnrichmentCoverage
		}

		p.FitScore = &s
		p.Qualified = s.Value >= opts.MinFitScore
		return p, nil
	}
}
