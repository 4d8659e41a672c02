// Package web provides the HTTP API for starting runs and deciding
// approvals.
package web

import "github.com/costdesk/costdesk/pkg/models"

// StartRunRequest is the request body for opening a remediation run.
type StartRunRequest struct {
	Service           string  `json:"service"             validate:"required"`
	AccountID         string  `json:"account_id"          validate:"required"`
	Region            string  `json:"region"`
	Team              string  `json:"team"`
	ExpectedDailyCost float64 `json:"expected_daily_cost"`
	ActualDailyCost   float64 `json:"actual_daily_cost"`
	DeltaDollars      float64 `json:"delta_dollars"`
	DeltaPercent      float64 `json:"delta_percent"`
	LookbackDays      int     `json:"lookback_days"       validate:"omitempty,min=1"`
}

// Anomaly converts the request into the anomaly the run starts from.
func (r StartRunRequest) Anomaly() models.CostAnomaly {
	anomaly := models.NewCostAnomaly(r.Service, r.AccountID)
	anomaly.Region = r.Region
	anomaly.Team = r.Team
	anomaly.ExpectedDailyCost = r.ExpectedDailyCost
	anomaly.ActualDailyCost = r.ActualDailyCost
	anomaly.DeltaDollars = r.DeltaDollars
	anomaly.DeltaPercent = r.DeltaPercent

	if r.LookbackDays > 0 {
		anomaly.LookbackDays = r.LookbackDays
	}

	return anomaly
}

// ApprovalRequest is the request body for deciding a suspended run. It is the
// same shape the approval topic carries; the URL names the run.
type ApprovalRequest struct {
	WorkflowID string `json:"workflow_id"`
	Approve    bool   `json:"approve"`
	By         string `json:"by"`
	Note       string `json:"note,omitempty"`
}

// PendingApprovalResponse summarizes one run waiting at the approval gate.
type PendingApprovalResponse struct {
	WorkflowID      string                     `json:"workflow_id"`
	SuspendedAt     string                     `json:"suspended_at,omitempty"`
	Summary         string                     `json:"summary,omitempty"`
	ApprovalDetails string                     `json:"approval_details,omitempty"`
	Actions         []models.RecommendedAction `json:"actions"`
}
