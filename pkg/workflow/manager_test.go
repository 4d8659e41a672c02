package workflow

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costdesk/costdesk/pkg/checkpoint"
	"github.com/costdesk/costdesk/pkg/checkpoint/file"
	"github.com/costdesk/costdesk/pkg/eventbus"
	"github.com/costdesk/costdesk/pkg/events"
	"github.com/costdesk/costdesk/pkg/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func (r *recordingPublisher) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.GetType())
	}

	return out
}

func newTestManager(t *testing.T, stages *Stages, timeout time.Duration) (*Manager, *recordingPublisher, checkpoint.Store) {
	t.Helper()

	store := file.NewStore(t.TempDir())
	publisher := &recordingPublisher{}
	manager := NewManager(store, publisher, stages, slog.Default(), timeout)

	return manager, publisher, store
}

func TestStartAutoApprovedRun(t *testing.T) {
	t.Parallel()

	stages := testStages(&stubCost{savings: 80}, &stubInfra{healthy: true})
	manager, publisher, store := newTestManager(t, stages, 0)

	anomaly := models.NewCostAnomaly("EC2", "123456789012")
	anomaly.DeltaDollars = 750

	state, err := manager.Start(context.Background(), models.NewTenantContext("acme"), &anomaly)
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalAutoApproved, state.Approval)
	assert.Equal(t, models.ReasonCompleted, state.Reason)

	// The terminal state is persisted for audit.
	stored, err := store.Get(context.Background(), state.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonCompleted, stored.Reason)
	assert.Len(t, stored.Executions, 1)

	types := publisher.types()
	assert.Equal(t, events.RunStartedEvent, types[0])
	assert.Equal(t, events.RunCompletedEvent, types[len(types)-1])
	assert.Contains(t, types, events.StageCompletedEvent)
	assert.NotContains(t, types, events.RunSuspendedEvent)
}

func TestStartWithoutAnomalyTerminates(t *testing.T) {
	t.Parallel()

	manager, publisher, _ := newTestManager(t, testStages(&stubCost{}, &stubInfra{healthy: true}), 0)

	state, err := manager.Start(context.Background(), models.NewTenantContext("acme"), nil)
	require.NoError(t, err)

	assert.Equal(t, models.ReasonNoAnomaly, state.Reason)
	assert.Contains(t, publisher.types(), events.RunCompletedEvent)
}

func TestSuspendAndResumeApprove(t *testing.T) {
	t.Parallel()

	stages := testStages(&stubCost{}, &stubInfra{healthy: true})
	stages.Planner = &stubPlanner{actions: []models.RecommendedAction{riskyAction(models.RiskMedium)}}
	manager, publisher, store := newTestManager(t, stages, 0)

	anomaly := models.NewCostAnomaly("EC2", "123456789012")
	anomaly.DeltaDollars = 750

	state, err := manager.Start(context.Background(), models.NewTenantContext("acme"), &anomaly)
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalPending, state.Approval)
	require.NotNil(t, state.SuspendedAt)

	suspended, err := store.Suspended(context.Background())
	require.NoError(t, err)
	require.Len(t, suspended, 1)

	types := publisher.types()
	assert.Contains(t, types, events.ApprovalRequestedEvent)
	assert.Contains(t, types, events.RunSuspendedEvent)
	assert.NotContains(t, types, events.RunCompletedEvent)

	resumed, err := manager.Resume(context.Background(), state.WorkflowID, Decision{Approve: true, By: "casey"})
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalApproved, resumed.Approval)
	assert.Equal(t, "approved_by=casey", resumed.ApprovalDetails)
	assert.Len(t, resumed.Executions, 1)
	assert.Equal(t, models.ReasonCompleted, resumed.Reason)

	suspended, err = store.Suspended(context.Background())
	require.NoError(t, err)
	assert.Empty(t, suspended)

	// A replayed decision must not re-execute.
	_, err = manager.Resume(context.Background(), state.WorkflowID, Decision{Approve: true, By: "casey"})
	assert.True(t, checkpoint.IsAlreadyResolved(err))
}

func TestResumeDeny(t *testing.T) {
	t.Parallel()

	stages := testStages(&stubCost{}, &stubInfra{healthy: true})
	stages.Planner = &stubPlanner{actions: []models.RecommendedAction{riskyAction(models.RiskHigh)}}
	manager, _, _ := newTestManager(t, stages, 0)

	anomaly := models.NewCostAnomaly("EC2", "123456789012")

	state, err := manager.Start(context.Background(), models.NewTenantContext("acme"), &anomaly)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalPending, state.Approval)

	resumed, err := manager.Resume(context.Background(), state.WorkflowID, Decision{Approve: false})
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalDenied, resumed.Approval)
	assert.Equal(t, "denied_by=unknown", resumed.ApprovalDetails)
	assert.Equal(t, models.ReasonHumanDenied, resumed.Reason)
	assert.Empty(t, resumed.Executions)
}

func TestResumeFinishedRunIsRejected(t *testing.T) {
	t.Parallel()

	manager, _, store := newTestManager(t, testStages(&stubCost{}, &stubInfra{healthy: true}), 0)

	// Terminates at the watcher; approval keeps its pending default.
	state, err := manager.Start(context.Background(), models.NewTenantContext("acme"), nil)
	require.NoError(t, err)
	require.Equal(t, models.ReasonNoAnomaly, state.Reason)

	pending, err := manager.PendingApprovals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = manager.Resume(context.Background(), state.WorkflowID, Decision{Approve: true, By: "mallory"})
	assert.True(t, checkpoint.IsNotSuspended(err))

	// The closed run must be untouched: still unapproved, nothing executed.
	stored, err := store.Get(context.Background(), state.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, stored.Approval)
	assert.Equal(t, models.ReasonNoAnomaly, stored.Reason)
	assert.Empty(t, stored.Executions)
	assert.Nil(t, stored.Verification)
}

func TestResumeUnknownRun(t *testing.T) {
	t.Parallel()

	manager, _, _ := newTestManager(t, testStages(&stubCost{}, &stubInfra{healthy: true}), 0)

	_, err := manager.Resume(context.Background(), "no-such-run", Decision{Approve: true, By: "casey"})
	assert.True(t, checkpoint.IsRunNotFound(err))
}

func TestExpireStale(t *testing.T) {
	t.Parallel()

	stages := testStages(&stubCost{}, &stubInfra{healthy: true})
	stages.Planner = &stubPlanner{actions: []models.RecommendedAction{riskyAction(models.RiskMedium)}}
	manager, publisher, store := newTestManager(t, stages, time.Hour)

	anomaly := models.NewCostAnomaly("EC2", "123456789012")

	state, err := manager.Start(context.Background(), models.NewTenantContext("acme"), &anomaly)
	require.NoError(t, err)
	require.NotNil(t, state.SuspendedAt)

	// Inside the window nothing expires.
	expired, err := manager.ExpireStale(context.Background(), state.SuspendedAt.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, expired)

	expired, err = manager.ExpireStale(context.Background(), state.SuspendedAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	stored, err := store.Get(context.Background(), state.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalTimedOut, stored.Approval)
	assert.Equal(t, models.ReasonApprovalTimedOut, stored.Reason)
	assert.Empty(t, stored.Executions)
	assert.Contains(t, publisher.types(), events.ApprovalExpiredEvent)

	// Sweep is idempotent once the run is resolved.
	expired, err = manager.ExpireStale(context.Background(), state.SuspendedAt.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestPendingApprovals(t *testing.T) {
	t.Parallel()

	stages := testStages(&stubCost{}, &stubInfra{healthy: true})
	stages.Planner = &stubPlanner{actions: []models.RecommendedAction{riskyAction(models.RiskMedium)}}
	manager, _, _ := newTestManager(t, stages, 0)

	anomaly := models.NewCostAnomaly("EC2", "123456789012")

	first, err := manager.Start(context.Background(), models.NewTenantContext("acme"), &anomaly)
	require.NoError(t, err)

	second, err := manager.Start(context.Background(), models.NewTenantContext("acme"), &anomaly)
	require.NoError(t, err)

	pending, err := manager.PendingApprovals(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ids := []string{pending[0].WorkflowID, pending[1].WorkflowID}
	assert.Contains(t, ids, first.WorkflowID)
	assert.Contains(t, ids, second.WorkflowID)
}
