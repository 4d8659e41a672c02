// Package analysis turns a triaged anomaly into a remediation plan. The
// planner is deterministic; whatever proposes actions, policy still decides
// whether they run.
package analysis

import (
	"context"
	"fmt"

	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/models"
)

// Planner reviews billing evidence for the anomaly window and proposes
// remediation actions.
type Planner struct {
	cost evidence.CostSource
}

// NewPlanner creates a Planner backed by the given cost source.
func NewPlanner(cost evidence.CostSource) *Planner {
	return &Planner{cost: cost}
}

// Plan reviews CUR line items for the service and window and returns an
// analysis with a narrative and recommended actions. The baseline plan is a
// low-risk budget alert to catch recurrence; attribution beyond that is left
// to a human.
func (p *Planner) Plan(ctx context.Context, anomaly models.CostAnomaly, windowStart, windowEnd string) (models.AnalysisResult, error) {
	if _, err := p.cost.CURLineItems(ctx, anomaly.AccountID, windowStart, windowEnd, anomaly.Service); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("analysis: get CUR line items: %w", err)
	}

	narrative := fmt.Sprintf(
		"cur line items reviewed for %s %s..%s; further attribution required",
		anomaly.Service, windowStart, windowEnd,
	)

	action := models.NewRecommendedAction(
		fmt.Sprintf("create/update budget alert for %s to catch recurrence", anomaly.Service),
		"create_budget_alert",
		models.RiskLow,
		"disable alert / delete budget rule",
	)
	action.TargetResource = fmt.Sprintf("budget:%s:%s", anomaly.Service, anomaly.AccountID)
	action.Parameters = map[string]any{
		"amount":            0.0,
		"threshold_percent": 20.0,
	}

	return models.AnalysisResult{
		RootCauseNarrative: narrative,
		AffectedResources:  []string{},
		RecommendedActions: []models.RecommendedAction{action},
		Confidence:         0.4,
	}, nil
}
