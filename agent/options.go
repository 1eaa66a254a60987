package agent

import (
	"fmt"
	"strings"
	"time"
)

// PartialFactsPolicy decides how the Scorer treats prospects whose
// enrichment only partially succeeded.
type PartialFactsPolicy int

const (
	// ComputeWithLowerConfidence scores partial fact sets and scales the
	// confidence by the fraction of answered enrichment queries.
	ComputeWithLowerConfidence PartialFactsPolicy = iota
	// SuppressPartial keeps the previous score (if any) and leaves the
	// prospect unqualified when none exists.
	SuppressPartial
)

// String implements fmt.Stringer.
func (p PartialFactsPolicy) String() string {
	if p == SuppressPartial {
		return "suppress"
	}
	return "compute"
}

// ParsePartialFactsPolicy parses "compute" or "suppress".
func ParsePartialFactsPolicy(s string) (PartialFactsPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "compute", "lower-confidence":
		return ComputeWithLowerConfidence, nil
	case "suppress":
		return SuppressPartial, nil
	}
	return 0, fmt.Errorf("unknown partial facts policy %q", s)
}

// Options configure the agents of a chain.
type Options struct {
	// FactTTL is applied to every fact acquired during a run. Seed facts
	// live twice as long.
	FactTTL time.Duration

	// SimilarityK and SimilarityThreshold bound the Hunter's vector lookup.
	SimilarityK         int
	SimilarityThreshold float32

	// ResultsPerQuery caps the hits the Enricher keeps per search query.
	ResultsPerQuery int

	PartialFacts PartialFactsPolicy

	// MinFitScore disqualifies prospects scoring below it. Zero qualifies
	// every scored prospect.
	MinFitScore float64

	// LLMTimeout bounds one draft generation.
	LLMTimeout   time.Duration
	MaxTokens    int
	Temperature  float64
	Instructions string
	Prompt       Instruction

	// DuplicateThreshold is the cosine similarity above which a draft is
	// flagged as a near duplicate of another prospect's draft.
	DuplicateThreshold float32

	// MaxSlots caps the meeting slots offered in one email.
	MaxSlots int
}

// DefaultOptions returns the defaults used by NewChain.
func DefaultOptions() Options {
	return Options{
		FactTTL:             7 * 24 * time.Hour,
		SimilarityK:         5,
		SimilarityThreshold: 0.75,
		ResultsPerQuery:     2,
		PartialFacts:        ComputeWithLowerConfidence,
		LLMTimeout:          60 * time.Second,
		MaxTokens:           512,
		Temperature:         0.7,
		Instructions:        defaultInstructions,
		Prompt:              NewInstructionFromText(defaultPrompt),
		DuplicateThreshold:  0.95,
		MaxSlots:            3,
	}
}

const defaultInstructions = "You write concise, honest B2B outreach emails for a customer experience analytics company. Never make claims you cannot verify."

const defaultPrompt = `Company: {{.Company.Name}}
Industry: {{.Company.Industry}}
Size: {{.Company.Size}} employees
Domain: {{.Company.Domain}}

Pain Points:
{{range .Pains}}- {{.}}
{{end}}
Key Facts:
{{range .Facts}}- {{.Value}} (confidence: {{printf "%.2f" .Confidence}})
{{end}}
Write a personalized outreach email to {{default "the head of customer experience" .Contact.Name}}.
Requirements:
- Subject line (brief and compelling)
- Body: 150-180 words
- Professional but friendly tone
- Focus on their specific industry challenges
- One clear call-to-action
- No exaggerated claims

Format response as:
Subject: [subject line]
Body: [email body]`
