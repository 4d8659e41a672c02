package models

import "time"

// ExecutionResult records the outcome of one executed action, including the
// pre/post snapshots kept for audit and potential rollback.
type ExecutionResult struct {
	ActionID           string         `json:"action_id"`
	ExecutedAt         time.Time      `json:"executed_at"`
	Success            bool           `json:"success"`
	Details            string         `json:"details"`
	RollbackAvailable  bool           `json:"rollback_available"`
	PreActionSnapshot  map[string]any `json:"pre_action_snapshot,omitempty"`
	PostActionSnapshot map[string]any `json:"post_action_snapshot,omitempty"`
}

// VerificationResult records the post-execution outcome check.
type VerificationResult struct {
	VerifiedAt            time.Time                  `json:"verified_at"`
	CostReductionObserved bool                       `json:"cost_reduction_observed"`
	ObservedSavingsDaily  float64                    `json:"observed_savings_daily"`
	ServiceHealthOK       bool                       `json:"service_health_ok"`
	HealthCheckDetails    string                     `json:"health_check_details"`
	Recommendation        VerificationRecommendation `json:"recommendation"`
}
