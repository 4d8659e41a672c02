package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/models"
)

type stubCost struct {
	items []evidence.CURLineItem
	err   error
}

func (s *stubCost) CostTimeseries(context.Context, string, string, string, string) (evidence.CostTimeseries, error) {
	return evidence.CostTimeseries{}, nil
}

func (s *stubCost) CURLineItems(context.Context, string, string, string, string) ([]evidence.CURLineItem, error) {
	return s.items, s.err
}

func (s *stubCost) RICoverage(context.Context, string, string, string) (evidence.Coverage, error) {
	return evidence.Coverage{}, nil
}

func (s *stubCost) RIUtilization(context.Context, string, string, string) (evidence.Utilization, error) {
	return evidence.Utilization{}, nil
}

func (s *stubCost) SPCoverage(context.Context, string, string, string) (evidence.Coverage, error) {
	return evidence.Coverage{}, nil
}

func (s *stubCost) SPUtilization(context.Context, string, string, string) (evidence.Utilization, error) {
	return evidence.Utilization{}, nil
}

func TestPlanProposesBudgetAlert(t *testing.T) {
	t.Parallel()

	anomaly := models.NewCostAnomaly("EC2", "123456789012")
	planner := NewPlanner(&stubCost{})

	result, err := planner.Plan(context.Background(), anomaly, "2026-02-01", "2026-02-16")
	require.NoError(t, err)

	require.Len(t, result.RecommendedActions, 1)
	action := result.RecommendedActions[0]

	assert.Equal(t, "create_budget_alert", action.ActionType)
	assert.Equal(t, models.RiskLow, action.RiskLevel)
	assert.Equal(t, "budget:EC2:123456789012", action.TargetResource)
	assert.NotEmpty(t, action.ActionID)
	assert.NotEmpty(t, action.RollbackProcedure)
	assert.InDelta(t, 0.4, result.Confidence, 0.001)
	assert.Contains(t, result.RootCauseNarrative, "2026-02-01..2026-02-16")
}

func TestPlanPropagatesSourceError(t *testing.T) {
	t.Parallel()

	anomaly := models.NewCostAnomaly("EC2", "123456789012")
	planner := NewPlanner(&stubCost{err: errors.New("athena down")})

	_, err := planner.Plan(context.Background(), anomaly, "2026-02-01", "2026-02-16")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get CUR line items")
}
