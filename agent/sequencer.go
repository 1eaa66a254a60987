package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/prospectmesh/artifact"
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"
)

// Sequencer sends the latest draft with a meeting proposal. It is
// idempotent: a proposal recorded under "<prospect id>:v<draft version>" is
// reused instead of sending again. Prospects that are not allowed or not
// qualified pass through untouched.
func Sequencer(opts Options) core.AgentFunc {
	return func(ctx context.Context, ac *core.AgentContext, p core.Prospect) (core.Prospect, error) {
		if !p.Compliance.Allowed() || !p.Qualified {
			return p, nil
		}
		draft, ok := p.LatestDraft()
		if !ok {
			return p, nil
		}

		key := dedup.SendKey(p.ID, draft.Version)
		if p.Proposal != nil && p.Proposal.Key == key {
			return p, nil
		}
		if ac.Proposals != nil {
			existing, found, err := artifact.LoadProposal(ac.Proposals, p.ID, key)
			if err != nil {
				return p, core.NewEngineFault("proposals", err)
			}
			if found {
				ac.LogDebug("proposal reused prospect_id=%s key=%s", p.ID, key)
				p.Proposal = existing
				return p, nil
			}
		}

		if ac.Email == nil {
			return p, core.NewTerminalError(core.StageSequencer, "no email collaborator configured", nil)
		}

		to, ok := p.PrimaryContact()
		if !ok {
			domain := dedup.NormalizeDomain(p.Company.Domain)
			to = core.Contact{Email: "contact@" + domain, Domain: domain, Name: "Customer Success at " + p.Company.Name, Source: "fallback"}
		}

		slots, err := suggestSlots(ctx, ac, p.ID, opts.MaxSlots)
		if err != nil {
			return p, err
		}

		var ics string
		if len(slots) > 0 {
			ics, err = ac.Calendar.GenerateICS(ctx, fmt.Sprintf("Customer experience intro with %s", p.Company.Name), slots[0])
			if err != nil {
				if !degradable(err) {
					return p, classify(core.StageSequencer, "invitation failed", err)
				}
				ac.LogWarn("invitation skipped prospect_id=%s: %v", p.ID, err)
				ics = ""
			}
		}

		body := draft.Body
		if len(slots) > 0 {
			footer := ""
			if ac.Compliance != nil {
				footer = ac.Compliance.Footer(p)
			}
			body = insertBeforeFooter(body, slotsText(slots), footer)
		}

		receipt, err := ac.Email.Send(ctx, core.SendRequest{
			To:             to.Email,
			Subject:        draft.Subject,
			Body:           body,
			ProspectID:     p.ID,
			IdempotencyKey: key,
			ICS:            ics,
		})
		if err != nil {
			return p, classify(core.StageSequencer, "send failed", err)
		}

		proposal := core.Proposal{
			Key:          key,
			DraftVersion: draft.Version,
			To:           to.Email,
			ThreadID:     receipt.ThreadID,
			MessageID:    receipt.MessageID,
			Slots:        slots,
			ICS:          ics,
			SentAt:       ac.Now(),
		}
		if ac.Proposals != nil {
			if err := artifact.SaveProposal(ac.Proposals, p.ID, proposal); err != nil {
				return p, core.NewEngineFault("proposals", err)
			}
		}

		p.Proposal = &proposal
		ac.LogInfo("outreach sent prospect_id=%s key=%s to=%s slots=%d", p.ID, key, to.Email, len(slots))
		return p, nil
	}
}

// suggestSlots asks the calendar for meeting windows. Collaborator errors
// degrade to no slots.
func suggestSlots(ctx context.Context, ac *core.AgentContext, prospectID string, max int) ([]core.Slot, error) {
	if ac.Calendar == nil {
		return nil, nil
	}
	slots, err := ac.Calendar.SuggestSlots(ctx, prospectID)
	if err != nil {
		if degradable(err) {
			ac.LogWarn("no slots for prospect_id=%s: %v", prospectID, err)
			return nil, nil
		}
		return nil, classify(core.StageSequencer, "slot suggestion failed", err)
	}
	if max > 0 && len(slots) > max {
		slots = slots[:max]
	}
	return slots, nil
}

func slotsText(slots []core.Slot) string {
	var b strings.Builder
	b.WriteString("I have a few time slots available this week:")
	for _, s := range slots {
		b.WriteString("\n- ")
		b.WriteString(s.Start.UTC().Format("Mon Jan 2, 15:04 MST"))
	}
	return b.String()
}

// insertBeforeFooter places text above the compliance footer so the footer
// stays last.
func insertBeforeFooter(body, text, footer string) string {
	footer = strings.TrimSpace(footer)
	if footer != "" && strings.HasSuffix(body, footer) {
		head := strings.TrimRight(strings.TrimSuffix(body, footer), "\n")
		return head + "\n\n" + text + "\n\n" + footer
	}
	return body + "\n\n" + text
}
