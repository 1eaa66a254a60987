package agent

import (
	"context"

	"github.com/hupe1980/prospectmesh/core"
)

// Compliance records the gate verdict. A blocked prospect still moves on so
// the Curator can book the outcome.
func Compliance(_ Options) core.AgentFunc {
	return func(ctx context.Context, ac *core.AgentContext, p core.Prospect) (core.Prospect, error) {
		if ac.Compliance == nil {
			return p, core.NewTerminalError(core.StageCompliance, "no compliance gate configured", nil)
		}

		if _, ok := p.LatestDraft(); !ok {
			p.Compliance = core.ComplianceStatus{State: core.ComplianceBlocked, Reason: "no draft to check"}
		} else {
			v := ac.Compliance.Check(p)
			p.Compliance = core.ComplianceStatus{State: core.ComplianceAllowed, Policy: v.Policy}
			if !v.Allowed {
				p.Compliance = core.ComplianceStatus{State: core.ComplianceBlocked, Reason: v.Reason, Policy: v.Policy}
			}
		}

		ac.Emit(ctx, core.NewVerdictEvent(ac.RunID, p.ID, p.Compliance))
		ac.LogInfo("compliance verdict prospect_id=%s state=%s reason=%q", p.ID, p.Compliance.State, p.Compliance.Reason)
		return p, nil
	}
}
