package executor

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/policy"
)

type stubInfra struct {
	tags    map[string]string
	tagsErr error
}

func (s *stubInfra) RecentDeploys(context.Context, string) ([]evidence.Deploy, error) {
	return nil, nil
}

func (s *stubInfra) Metrics(context.Context, string, string, string) (evidence.MetricWindow, error) {
	return evidence.MetricWindow{}, nil
}

func (s *stubInfra) ResourceTags(context.Context, string) (map[string]string, error) {
	return s.tags, s.tagsErr
}

func (s *stubInfra) ServiceHealth(context.Context, string) (evidence.ServiceHealth, error) {
	return evidence.ServiceHealth{OK: true}, nil
}

func lowRiskAction(target string) models.RecommendedAction {
	action := models.NewRecommendedAction("scale down idle fleet", "resize_asg", models.RiskLow, "restore previous desired capacity")
	action.TargetResource = target

	return action
}

func TestExecuteRecordsSnapshots(t *testing.T) {
	t.Parallel()

	exec := New(&stubInfra{tags: map[string]string{"env": "dev"}}, slog.Default())
	action := lowRiskAction("arn:aws:ec2:us-east-1:123456789012:instance/i-01")

	results, err := exec.Execute(context.Background(), models.ApprovalAutoApproved,
		[]models.RecommendedAction{action}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, action.ActionID, r.ActionID)
	assert.True(t, r.Success)
	assert.True(t, r.RollbackAvailable)
	assert.Equal(t, map[string]any{"tags": map[string]string{"env": "dev"}}, r.PreActionSnapshot)
	assert.Equal(t, r.PreActionSnapshot, r.PostActionSnapshot)
	assert.False(t, r.ExecutedAt.IsZero())
}

func TestExecuteRefusesWithoutApproval(t *testing.T) {
	t.Parallel()

	exec := New(&stubInfra{}, slog.Default())

	results, err := exec.Execute(context.Background(), models.ApprovalPending,
		[]models.RecommendedAction{lowRiskAction("")}, nil)
	require.ErrorIs(t, err, policy.ErrNotExecutable)
	assert.Empty(t, results)
}

func TestExecuteRefusesCriticalBatchUpFront(t *testing.T) {
	t.Parallel()

	exec := New(&stubInfra{}, slog.Default())
	critical := models.NewRecommendedAction("drop prod db", "delete_database", models.RiskCritical, "restore from backup")

	results, err := exec.Execute(context.Background(), models.ApprovalApproved,
		[]models.RecommendedAction{lowRiskAction(""), critical}, nil)
	require.ErrorIs(t, err, policy.ErrCriticalAction)
	assert.Empty(t, results)
}

func TestExecuteStopsOnSnapshotFailure(t *testing.T) {
	t.Parallel()

	exec := New(&stubInfra{tagsErr: errors.New("tagging api down")}, slog.Default())

	results, err := exec.Execute(context.Background(), models.ApprovalApproved,
		[]models.RecommendedAction{lowRiskAction("arn:aws:ec2:us-east-1:123456789012:instance/i-01")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre-snapshot")
	assert.Empty(t, results)
}

func TestExecuteUntargetedActionHasEmptySnapshot(t *testing.T) {
	t.Parallel()

	exec := New(&stubInfra{}, slog.Default())

	results, err := exec.Execute(context.Background(), models.ApprovalApproved,
		[]models.RecommendedAction{lowRiskAction("")}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, map[string]any{}, results[0].PreActionSnapshot)
}
