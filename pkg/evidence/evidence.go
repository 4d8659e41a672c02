// Package evidence defines the data sources the triage, analysis, and
// verification stages draw on, plus the typed records they exchange. All
// sources are read-only; nothing in this package mutates cloud state.
package evidence

import "context"

// Coverage is an RI or Savings Plans coverage window. CoverageDelta is the
// change against the preceding window, expressed as a fraction (0.05 = five
// percentage points).
type Coverage struct {
	CoveragePercent float64 `json:"coverage_percent"`
	CoverageDelta   float64 `json:"coverage_delta"`
}

// Utilization is an RI or Savings Plans utilization window.
type Utilization struct {
	UtilizationPercent float64 `json:"utilization_percent"`
	UnusedCommitment   float64 `json:"unused_commitment"`
}

// CURLineItem is one cost-and-usage-report row, keyed the way CUR columns
// are named in Athena.
type CURLineItem struct {
	LineItemType  string  `json:"line_item_line_item_type"`
	UnblendedCost float64 `json:"unblended_cost"`
	ProductName   string  `json:"product_product_name"`
	ProductCode   string  `json:"line_item_product_code"`
	UsageType     string  `json:"line_item_usage_type"`
}

// CostPoint is one day of spend.
type CostPoint struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// CostTimeseries is daily spend over a window plus the derived daily savings
// observed against the pre-execution baseline.
type CostTimeseries struct {
	Points               []CostPoint `json:"points,omitempty"`
	ObservedSavingsDaily float64     `json:"observed_savings_daily"`
}

// Deploy is one recent deployment event for a service.
type Deploy struct {
	ID         string `json:"id"`
	Service    string `json:"service"`
	DeployedAt string `json:"deployed_at"`
}

// MetricWindow compares a metric's current window against its baseline.
type MetricWindow struct {
	Baseline float64 `json:"baseline"`
	Current  float64 `json:"current"`
}

// ServiceHealth is the post-execution health signal for a service.
type ServiceHealth struct {
	OK      bool   `json:"ok"`
	Details string `json:"details"`
}

// NamespaceAllocation is one namespace's share of cluster cost. Delta is nil
// when the allocation backend has no prior window to compare against.
type NamespaceAllocation struct {
	Cost  float64  `json:"cost"`
	Delta *float64 `json:"delta,omitempty"`
}

// Allocation is a KubeCost-style allocation response aggregated by namespace.
type Allocation struct {
	Allocations map[string]NamespaceAllocation `json:"allocations"`
}

// CostSource provides billing data: timeseries, CUR line items, and
// commitment coverage/utilization.
type CostSource interface {
	CostTimeseries(ctx context.Context, service, accountID, startDate, endDate string) (CostTimeseries, error)
	CURLineItems(ctx context.Context, accountID, startDate, endDate, service string) ([]CURLineItem, error)
	RICoverage(ctx context.Context, accountID, startDate, endDate string) (Coverage, error)
	RIUtilization(ctx context.Context, accountID, startDate, endDate string) (Utilization, error)
	SPCoverage(ctx context.Context, accountID, startDate, endDate string) (Coverage, error)
	SPUtilization(ctx context.Context, accountID, startDate, endDate string) (Utilization, error)
}

// InfraSource provides deployment history, metrics, resource tags, and
// service health.
type InfraSource interface {
	RecentDeploys(ctx context.Context, service string) ([]Deploy, error)
	Metrics(ctx context.Context, resourceID, metricName, namespace string) (MetricWindow, error)
	ResourceTags(ctx context.Context, resourceARN string) (map[string]string, error)
	ServiceHealth(ctx context.Context, service string) (ServiceHealth, error)
}

// KubeCostSource provides cluster cost allocation data. Deployments without
// Kubernetes pass nil wherever a KubeCostSource is accepted.
type KubeCostSource interface {
	Allocation(ctx context.Context, window, aggregate string) (Allocation, error)
}
