package models

import (
	"time"

	"github.com/google/uuid"
)

func shortID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

// CostAnomaly is the immutable input that starts a remediation run: a
// detected deviation between expected and actual daily cost for one
// service/account/window.
type CostAnomaly struct {
	AnomalyID  string    `json:"anomaly_id"`
	DetectedAt time.Time `json:"detected_at"`

	Service   string `json:"service"    validate:"required"`
	AccountID string `json:"account_id" validate:"required"`
	Region    string `json:"region"`
	Team      string `json:"team"`

	ExpectedDailyCost float64 `json:"expected_daily_cost"`
	ActualDailyCost   float64 `json:"actual_daily_cost"`
	DeltaDollars      float64 `json:"delta_dollars"`
	DeltaPercent      float64 `json:"delta_percent"`
	ZScore            float64 `json:"z_score"`
	LookbackDays      int     `json:"lookback_days"`
}

// NewCostAnomaly creates a CostAnomaly with generated defaults.
func NewCostAnomaly(service, accountID string) CostAnomaly {
	return CostAnomaly{
		AnomalyID:    shortID("anom"),
		DetectedAt:   time.Now().UTC(),
		Service:      service,
		AccountID:    accountID,
		LookbackDays: 30,
	}
}

// TenantContext identifies the tenant a run belongs to. Immutable for the
// lifetime of the run.
type TenantContext struct {
	TenantID            string `json:"tenant_id" validate:"required"`
	ManagementAccountID string `json:"management_account_id,omitempty"`
	DefaultRegion       string `json:"default_region"`
	AssumeRoleARN       string `json:"assume_role_arn,omitempty"`
	KubeCostBaseURL     string `json:"kubecost_base_url,omitempty"`
}

// NewTenantContext creates a TenantContext with defaults.
func NewTenantContext(tenantID string) TenantContext {
	return TenantContext{
		TenantID:      tenantID,
		DefaultRegion: "us-east-1",
	}
}
