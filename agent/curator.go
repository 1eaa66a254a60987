package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/prospectmesh/core"
)

// Curator assembles the handoff packet of allowed, qualified and sequenced
// prospects. Every other prospect is booked as blocked with its reason.
func Curator(_ Options) core.AgentFunc {
	return func(ctx context.Context, ac *core.AgentContext, p core.Prospect) (core.Prospect, error) {
		if reason := blockReason(p); reason != "" {
			p.Handoff = nil
			o := core.Blocked(p.ID, reason)
			p.Outcome = &o
			return p, nil
		}

		var thread *core.Thread
		if ac.Email != nil {
			t, err := ac.Email.Thread(ctx, p.ID)
			if err != nil && !degradable(err) {
				return p, classify(core.StageCurator, "thread lookup failed", err)
			}
			thread = t
		}

		draft, _ := p.LatestDraft()
		packet := core.HandoffPacket{
			ProspectID:  p.ID,
			Company:     p.Company,
			Contacts:    append([]core.Contact(nil), p.Contacts...),
			FitScore:    *p.FitScore,
			Draft:       draft,
			Thread:      thread,
			Slots:       append([]core.Slot(nil), p.Proposal.Slots...),
			Summary:     summarize(p, ac),
			GeneratedAt: ac.Now(),
		}

		if ac.Handoffs != nil {
			if err := ac.Handoffs.SaveHandoff(ctx, packet); err != nil {
				// A rejected packet fails this prospect only; an unusable
				// store aborts the batch.
				if _, remote := core.IsRemoteError(err); remote || core.IsTransient(err) {
					return p, classify(core.StageCurator, "handoff save failed", err)
				}
				return p, core.NewEngineFault("store", err)
			}
		}

		p.Handoff = &packet
		o := core.Completed(p.ID, &packet)
		p.Outcome = &o
		return p, nil
	}
}

func blockReason(p core.Prospect) string {
	switch {
	case p.Compliance.Blocked():
		return p.Compliance.Reason
	case !p.Compliance.Allowed():
		return "compliance unchecked"
	case p.FitScore == nil:
		return "fit score unavailable"
	case !p.Qualified:
		return "low fit score"
	case p.Proposal == nil:
		return "outreach not sequenced"
	}
	return ""
}

// summarize writes the internal notes a seller reads first.
func summarize(p core.Prospect, ac *core.AgentContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %d employees, %s)\n", p.Company.Name, p.Company.Industry, p.Company.Size, p.Company.Domain)
	fmt.Fprintf(&b, "Fit score %.2f (confidence %.2f)", p.FitScore.Value, p.FitScore.Confidence)
	if p.EnrichmentPartial {
		b.WriteString(", partial enrichment")
	}
	b.WriteString("\n")
	for _, f := range topFacts(p, ac.Now(), 3) {
		fmt.Fprintf(&b, "• %s\n", f.Value)
	}
	if c, ok := p.PrimaryContact(); ok {
		fmt.Fprintf(&b, "Contacted %s <%s>", c.Name, c.Email)
		if p.Proposal != nil && len(p.Proposal.Slots) > 0 {
			fmt.Fprintf(&b, ", %d slots proposed", len(p.Proposal.Slots))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
