package agent

import (
	"sort"
	"time"

	"github.com/hupe1980/prospectmesh/core"
)

// mergeFact stores f under key unless a live fact with higher confidence
// exists. Equal confidence favours the newer acquisition. Expired facts are
// treated as absent. It reports whether f was stored.
func mergeFact(facts map[string]core.Fact, key string, f core.Fact, now time.Time) bool {
	existing, ok := facts[key]
	if ok && !existing.Expired(now) {
		if f.Confidence < existing.Confidence {
			return false
		}
		if f.Confidence == existing.Confidence && !f.AcquiredAt.After(existing.AcquiredAt) {
			return false
		}
	}
	facts[key] = f
	return true
}

// clampConfidence bounds c to [0, 1]; non-positive values use fallback.
func clampConfidence(c, fallback float64) float64 {
	if c <= 0 {
		c = fallback
	}
	if c > 1 {
		return 1
	}
	return c
}

// topFacts returns up to n live facts by descending confidence, ties broken
// by key.
func topFacts(p core.Prospect, now time.Time, n int) []core.Fact {
	live := p.LiveFacts(now)
	keys := make([]string, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := live[keys[i]], live[keys[j]]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]core.Fact, 0, len(keys))
	for _, k := range keys {
		out = append(out, live[k])
	}
	return out
}
