package triage

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/models"
)

type fakeCost struct {
	riCoverage evidence.Coverage
	spCoverage evidence.Coverage
	curItems   []evidence.CURLineItem
	curErr     error
	covErr     error
}

func (f *fakeCost) CostTimeseries(context.Context, string, string, string, string) (evidence.CostTimeseries, error) {
	return evidence.CostTimeseries{}, nil
}

func (f *fakeCost) CURLineItems(context.Context, string, string, string, string) ([]evidence.CURLineItem, error) {
	return f.curItems, f.curErr
}

func (f *fakeCost) RICoverage(context.Context, string, string, string) (evidence.Coverage, error) {
	return f.riCoverage, f.covErr
}

func (f *fakeCost) RIUtilization(context.Context, string, string, string) (evidence.Utilization, error) {
	return evidence.Utilization{}, nil
}

func (f *fakeCost) SPCoverage(context.Context, string, string, string) (evidence.Coverage, error) {
	return f.spCoverage, f.covErr
}

func (f *fakeCost) SPUtilization(context.Context, string, string, string) (evidence.Utilization, error) {
	return evidence.Utilization{}, nil
}

type fakeInfra struct {
	deploys    []evidence.Deploy
	metrics    evidence.MetricWindow
	deploysErr error
	metricsErr error
}

func (f *fakeInfra) RecentDeploys(context.Context, string) ([]evidence.Deploy, error) {
	return f.deploys, f.deploysErr
}

func (f *fakeInfra) Metrics(context.Context, string, string, string) (evidence.MetricWindow, error) {
	return f.metrics, f.metricsErr
}

func (f *fakeInfra) ResourceTags(context.Context, string) (map[string]string, error) {
	return nil, nil
}

func (f *fakeInfra) ServiceHealth(context.Context, string) (evidence.ServiceHealth, error) {
	return evidence.ServiceHealth{OK: true}, nil
}

type fakeKubeCost struct {
	allocation evidence.Allocation
	err        error
}

func (f *fakeKubeCost) Allocation(context.Context, string, string) (evidence.Allocation, error) {
	return f.allocation, f.err
}

func testAnomaly(delta float64) models.CostAnomaly {
	anomaly := models.NewCostAnomaly("EC2", "123456789012")
	anomaly.DeltaDollars = delta
	anomaly.DeltaPercent = 40.0

	return anomaly
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestSeverityFromDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta float64
		want  models.AnomalySeverity
	}{
		{0, models.SeverityLow},
		{199, models.SeverityLow},
		{200, models.SeverityMedium},
		{999, models.SeverityMedium},
		{1000, models.SeverityHigh},
		{4999, models.SeverityHigh},
		{5000, models.SeverityCritical},
		{10000, models.SeverityCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFromDelta(tt.delta), "delta %v", tt.delta)
	}
}

func TestPctChange(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.1, PctChange(110, 100), 0.001)
	assert.InDelta(t, -0.5, PctChange(50, 100), 0.001)
	assert.InDelta(t, 1.0, PctChange(100, 0), 0.001)
	assert.InDelta(t, 0.0, PctChange(0, 0), 0.001)
}

func TestCascadeCommitmentDriftWins(t *testing.T) {
	t.Parallel()

	c := NewClassifier(
		&fakeCost{riCoverage: evidence.Coverage{CoverageDelta: -0.08}},
		&fakeInfra{},
		nil,
		testLogger(),
	)

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryCommitmentCoverageDrift, result.Category)
	assert.Equal(t, models.SeverityMedium, result.Severity)
	assert.InDelta(t, 0.8, result.Confidence, 0.001)
	assert.NotNil(t, result.Evidence.RICoverageDelta)
}

func TestCascadeCreditsBeatDataTransfer(t *testing.T) {
	t.Parallel()

	// Both signals exceed their thresholds; the earlier rule must win.
	c := NewClassifier(
		&fakeCost{curItems: []evidence.CURLineItem{
			{LineItemType: "Credit", UnblendedCost: -400},
			{LineItemType: "Usage", UsageType: "USE1-DataTransfer-Out-Bytes", UnblendedCost: 500},
		}},
		&fakeInfra{},
		nil,
		testLogger(),
	)

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryCreditsRefundsFees, result.Category)
	assert.InDelta(t, 0.75, result.Confidence, 0.001)
}

func TestCascadeDataTransfer(t *testing.T) {
	t.Parallel()

	c := NewClassifier(
		&fakeCost{curItems: []evidence.CURLineItem{
			{LineItemType: "Usage", UsageType: "USE1-DataTransfer-Out-Bytes", UnblendedCost: 500},
		}},
		&fakeInfra{},
		nil,
		testLogger(),
	)

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryDataTransfer, result.Category)
	assert.InDelta(t, 0.85, result.Confidence, 0.001)
}

func TestCascadeMarketplace(t *testing.T) {
	t.Parallel()

	c := NewClassifier(
		&fakeCost{curItems: []evidence.CURLineItem{
			{LineItemType: "Usage", ProductName: "Acme Marketplace Scanner", UnblendedCost: 600},
		}},
		&fakeInfra{},
		nil,
		testLogger(),
	)

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")
	assert.Equal(t, models.CategoryMarketplace, result.Category)
}

func TestCascadeNamespaceShift(t *testing.T) {
	t.Parallel()

	delta := 400.0
	c := NewClassifier(
		&fakeCost{},
		&fakeInfra{},
		&fakeKubeCost{allocation: evidence.Allocation{
			Allocations: map[string]evidence.NamespaceAllocation{
				"batch":   {Cost: 900, Delta: &delta},
				"ingress": {Cost: 100},
			},
		}},
		testLogger(),
	)

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryK8sCostShift, result.Category)
	assert.Equal(t, map[string]float64{"batch": 400}, result.Evidence.K8sNamespaceDeltas)
}

func TestCascadeDeployCorrelation(t *testing.T) {
	t.Parallel()

	c := NewClassifier(
		&fakeCost{},
		&fakeInfra{deploys: []evidence.Deploy{{ID: "d-42", Service: "EC2"}}},
		nil,
		testLogger(),
	)

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryDeployRelated, result.Category)
	assert.Equal(t, []string{"d-42"}, result.Evidence.DeployCorrelation)
}

func TestCascadeExpectedGrowth(t *testing.T) {
	t.Parallel()

	// 40% usage growth against a 40% cost delta.
	c := NewClassifier(
		&fakeCost{},
		&fakeInfra{metrics: evidence.MetricWindow{Baseline: 1000, Current: 1400}},
		nil,
		testLogger(),
	)

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryExpectedGrowth, result.Category)
	assert.InDelta(t, 0.8, result.Confidence, 0.001)
	assert.NotEmpty(t, result.Evidence.UsageCorrelation)
}

func TestCascadeUnknownDefault(t *testing.T) {
	t.Parallel()

	c := NewClassifier(&fakeCost{}, &fakeInfra{}, nil, testLogger())

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryUnknown, result.Category)
	assert.InDelta(t, 0.4, result.Confidence, 0.001)
}

func TestCascadeDegradesOnSourceErrors(t *testing.T) {
	t.Parallel()

	// Every source fails; classification still completes as unknown and
	// leaves the unmeasured evidence fields nil.
	c := NewClassifier(
		&fakeCost{covErr: errors.New("ce down"), curErr: errors.New("athena down")},
		&fakeInfra{deploysErr: errors.New("cd down"), metricsErr: errors.New("cw down")},
		&fakeKubeCost{err: errors.New("kubecost down")},
		testLogger(),
	)

	result := c.Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryUnknown, result.Category)
	assert.Nil(t, result.Evidence.RICoverageDelta)
	assert.Nil(t, result.Evidence.CreditsDelta)
	assert.Nil(t, result.Evidence.DataTransferDelta)
}

func TestCascadeThresholdScalesWithDelta(t *testing.T) {
	t.Parallel()

	// $500 of data transfer clears 20% of a $750 delta but not of a $5000 one.
	cost := &fakeCost{curItems: []evidence.CURLineItem{
		{LineItemType: "Usage", UsageType: "USE1-DataTransfer-Out-Bytes", UnblendedCost: 500},
	}}

	small := NewClassifier(cost, &fakeInfra{}, nil, testLogger()).
		Classify(context.Background(), testAnomaly(750), "2026-02-01", "2026-02-16")
	large := NewClassifier(cost, &fakeInfra{}, nil, testLogger()).
		Classify(context.Background(), testAnomaly(5000), "2026-02-01", "2026-02-16")

	assert.Equal(t, models.CategoryDataTransfer, small.Category)
	assert.Equal(t, models.CategoryUnknown, large.Category)
	assert.Equal(t, models.SeverityCritical, large.Severity)
}
