package models

// RecommendedAction is a single remediation step proposed by the analyst.
// RollbackProcedure is mandatory: an action nobody knows how to undo is not
// a candidate for automation.
type RecommendedAction struct {
	ActionID                string         `json:"action_id"`
	Description             string         `json:"description"        validate:"required"`
	ActionType              string         `json:"action_type"        validate:"required"`
	RiskLevel               RiskLevel      `json:"risk_level"         validate:"required"`
	EstimatedSavingsMonthly float64        `json:"estimated_savings_monthly"`
	TargetResource          string         `json:"target_resource"`
	Parameters              map[string]any `json:"parameters,omitempty"`
	RollbackProcedure       string         `json:"rollback_procedure" validate:"required"`
}

// NewRecommendedAction creates a RecommendedAction with a generated ID.
func NewRecommendedAction(description, actionType string, risk RiskLevel, rollback string) RecommendedAction {
	return RecommendedAction{
		ActionID:          shortID("act"),
		Description:       description,
		ActionType:        actionType,
		RiskLevel:         risk,
		RollbackProcedure: rollback,
	}
}

// AnalysisResult is the analyst-stage output: narrative plus proposed actions.
type AnalysisResult struct {
	RootCauseNarrative      string              `json:"root_cause_narrative"`
	AffectedResources       []string            `json:"affected_resources"`
	RecommendedActions      []RecommendedAction `json:"recommended_actions"`
	EstimatedMonthlySavings float64             `json:"estimated_monthly_savings"`
	Confidence              float64             `json:"confidence"`
}
