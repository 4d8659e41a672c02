// Package models defines the core domain models for cost-anomaly remediation runs.
package models

// AnomalySeverity classifies how large a cost anomaly is in dollar terms.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyCategory is the root-cause category assigned by triage.
// config_drift and pricing_change are reserved: no cascade rule emits them
// today, but they are part of the closed category set.
type AnomalyCategory string

const (
	CategoryExpectedGrowth          AnomalyCategory = "expected_growth"
	CategoryDeployRelated           AnomalyCategory = "deploy_related"
	CategoryConfigDrift             AnomalyCategory = "config_drift"
	CategoryPricingChange           AnomalyCategory = "pricing_change"
	CategoryCreditsRefundsFees      AnomalyCategory = "credits_refunds_fees"
	CategoryMarketplace             AnomalyCategory = "marketplace"
	CategoryDataTransfer            AnomalyCategory = "data_transfer"
	CategoryK8sCostShift            AnomalyCategory = "k8s_cost_shift"
	CategoryCommitmentCoverageDrift AnomalyCategory = "commitment_coverage_drift"
	CategoryUnknown                 AnomalyCategory = "unknown"
)

// ApprovalStatus tracks the human-in-the-loop approval state of a run.
// pending is the only state a run may suspend in.
type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalDenied       ApprovalStatus = "denied"
	ApprovalAutoApproved ApprovalStatus = "auto_approved"
	ApprovalTimedOut     ApprovalStatus = "timed_out"
)

// Executable reports whether the executor may run actions under this status.
func (a ApprovalStatus) Executable() bool {
	return a == ApprovalApproved || a == ApprovalAutoApproved
}

// RiskLevel classifies how dangerous an automated action is.
// The levels form a total order; comparisons go through Score/Compare so the
// ordering cannot drift from the enum definition.
type RiskLevel string

const (
	RiskLow       RiskLevel = "low"
	RiskLowMedium RiskLevel = "low_medium"
	RiskMedium    RiskLevel = "medium"
	RiskHigh      RiskLevel = "high"
	RiskCritical  RiskLevel = "critical"
)

// Score returns the numeric rank of the risk level on its total order.
// Unknown levels rank above critical so a malformed action can never slip
// under a threshold.
func (r RiskLevel) Score() int {
	switch r {
	case RiskLow:
		return 10
	case RiskLowMedium:
		return 20
	case RiskMedium:
		return 30
	case RiskHigh:
		return 40
	case RiskCritical:
		return 50
	default:
		return 60
	}
}

// Compare returns -1, 0, or 1 as r is below, equal to, or above other.
func (r RiskLevel) Compare(other RiskLevel) int {
	switch {
	case r.Score() < other.Score():
		return -1
	case r.Score() > other.Score():
		return 1
	default:
		return 0
	}
}

// Valid reports whether the risk level is a member of the closed set.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskLowMedium, RiskMedium, RiskHigh, RiskCritical:
		return true
	}

	return false
}

// VerificationRecommendation is the verifier's follow-up recommendation.
type VerificationRecommendation string

const (
	RecommendClose    VerificationRecommendation = "close"
	RecommendRollback VerificationRecommendation = "rollback"
	RecommendEscalate VerificationRecommendation = "escalate"
	RecommendMonitor  VerificationRecommendation = "monitor"
)

// TerminationReason records why a run reached its terminal state.
type TerminationReason string

const (
	ReasonCompleted                    TerminationReason = "completed"
	ReasonNoAnomaly                    TerminationReason = "no_anomaly"
	ReasonExpectedGrowthHighConfidence TerminationReason = "expected_growth_high_confidence"
	ReasonNoActions                    TerminationReason = "no_actions"
	ReasonPolicyDenied                 TerminationReason = "policy_denied"
	ReasonHumanDenied                  TerminationReason = "human_denied"
	ReasonApprovalTimedOut             TerminationReason = "approval_timed_out"
	ReasonStageError                   TerminationReason = "stage_error"
)
