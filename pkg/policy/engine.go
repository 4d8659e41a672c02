// Package policy implements the deterministic approval engine and the
// executor safety gate. Upstream components may propose whatever they like;
// policy decides whether it runs.
package policy

import (
	"fmt"

	"github.com/costdesk/costdesk/pkg/models"
)

// Decision is the approval outcome plus a human-readable explanation that
// ends up in the run's approval_details.
type Decision struct {
	Approval models.ApprovalStatus
	Details  string
}

// Engine evaluates a proposed action set against two risk thresholds on the
// RiskLevel total order. Both thresholds are deployment configuration, not
// constants.
type Engine struct {
	AutoApproveMaxRisk models.RiskLevel
	DenyMinRisk        models.RiskLevel
}

// NewEngine returns an engine with the default thresholds: auto-approve up
// to low risk, deny at critical risk.
func NewEngine() *Engine {
	return &Engine{
		AutoApproveMaxRisk: models.RiskLow,
		DenyMinRisk:        models.RiskCritical,
	}
}

// MaxRisk returns the highest risk level among the given actions on the
// RiskLevel total order. Calling it with an empty slice is a caller error;
// Decide guards the empty case.
func (e *Engine) MaxRisk(actions []models.RecommendedAction) models.RiskLevel {
	maxLevel := actions[0].RiskLevel
	for _, a := range actions[1:] {
		if a.RiskLevel.Compare(maxLevel) > 0 {
			maxLevel = a.RiskLevel
		}
	}

	return maxLevel
}

// Decide evaluates the proposed actions:
//
//  1. no actions -> denied ("no recommended actions")
//  2. max risk >= deny threshold -> denied
//  3. max risk <= auto-approve threshold -> auto_approved
//  4. otherwise -> pending (requires a human decision)
func (e *Engine) Decide(actions []models.RecommendedAction) Decision {
	if len(actions) == 0 {
		return Decision{
			Approval: models.ApprovalDenied,
			Details:  "no recommended actions",
		}
	}

	maxRisk := e.MaxRisk(actions)

	if maxRisk.Compare(e.DenyMinRisk) >= 0 {
		return Decision{
			Approval: models.ApprovalDenied,
			Details:  fmt.Sprintf("critical-risk action(s) present: %s; manual-only", maxRisk),
		}
	}

	if maxRisk.Compare(e.AutoApproveMaxRisk) <= 0 {
		return Decision{
			Approval: models.ApprovalAutoApproved,
			Details:  fmt.Sprintf("auto-approved; max risk=%s", maxRisk),
		}
	}

	return Decision{
		Approval: models.ApprovalPending,
		Details:  fmt.Sprintf("requires human approval; max risk=%s", maxRisk),
	}
}
