package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/costdesk/costdesk/pkg/checkpoint"
	"github.com/costdesk/costdesk/pkg/eventbus"
	"github.com/costdesk/costdesk/pkg/events"
	"github.com/costdesk/costdesk/pkg/models"
)

// DefaultApprovalTimeout is how long a suspended run waits for a human
// before the sweep expires it.
const DefaultApprovalTimeout = 24 * time.Hour

// Decision is a human approval decision as it arrives from the API, CLI, or
// approval topic.
type Decision struct {
	Approve bool
	By      string
	Note    string
}

// Manager owns run lifecycles: it starts runs, checkpoints suspensions,
// resumes on decisions, and expires stale approvals. All durable state goes
// through the checkpoint store; the Manager itself is stateless and safe to
// run on several workers at once.
type Manager struct {
	store           checkpoint.Store
	publisher       eventbus.EventPublisher
	runner          *Runner
	logger          *slog.Logger
	approvalTimeout time.Duration
}

// NewManager creates a Manager. publisher may be nil for one-shot runs that
// need no event stream; approvalTimeout of zero means DefaultApprovalTimeout.
func NewManager(store checkpoint.Store, publisher eventbus.EventPublisher, stages *Stages, logger *slog.Logger, approvalTimeout time.Duration) *Manager {
	if approvalTimeout <= 0 {
		approvalTimeout = DefaultApprovalTimeout
	}

	m := &Manager{
		store:           store,
		publisher:       publisher,
		logger:          logger.With("module", "workflow"),
		approvalTimeout: approvalTimeout,
	}
	m.runner = NewRunner(stages, m.publishStage)

	return m
}

func (m *Manager) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, workflowID, event); err != nil {
		m.logger.Warn("Failed to publish event",
			"workflow_id", workflowID,
			"event_type", event.GetType(),
			"error", err)
	}
}

func (m *Manager) publishStage(ctx context.Context, stage string, state *models.WorkflowState) {
	m.publish(ctx, state.WorkflowID, events.StageCompleted{
		BaseEvent:       events.NewBaseEvent(events.StageCompletedEvent, state.WorkflowID),
		Stage:           stage,
		ShouldTerminate: state.ShouldTerminate,
	})
}

// Start begins a new run for the anomaly and drives it until it finishes or
// suspends. Suspended runs are checkpointed and announced on the approval
// topic; finished runs are persisted for audit.
func (m *Manager) Start(ctx context.Context, tenant models.TenantContext, anomaly *models.CostAnomaly) (*models.WorkflowState, error) {
	state := models.NewWorkflowState(tenant)
	state.Anomaly = anomaly

	logger := m.logger.With("workflow_id", state.WorkflowID)
	logger.Info("Starting remediation run", "tenant_id", tenant.TenantID)

	started := events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, state.WorkflowID),
		Tenant:    tenant,
	}
	if anomaly != nil {
		started.Service = anomaly.Service
		started.AccountID = anomaly.AccountID
	}

	m.publish(ctx, state.WorkflowID, started)

	err := m.runner.Run(ctx, state)
	if errors.Is(err, ErrSuspended) {
		return m.suspend(ctx, state, logger)
	}

	return m.complete(ctx, state, logger)
}

func (m *Manager) suspend(ctx context.Context, state *models.WorkflowState, logger *slog.Logger) (*models.WorkflowState, error) {
	if err := m.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("checkpoint suspended run: %w", err)
	}

	summary := ""
	if state.Triage != nil {
		summary = state.Triage.Summary
	}

	m.publish(ctx, state.WorkflowID, events.ApprovalRequested{
		BaseEvent: events.NewBaseEvent(events.ApprovalRequestedEvent, state.WorkflowID),
		Summary:   summary,
		Actions:   state.Actions(),
	})

	maxRisk := models.RiskLow
	if actions := state.Actions(); len(actions) > 0 {
		maxRisk = m.runner.stages.Policy.MaxRisk(actions)
	}

	m.publish(ctx, state.WorkflowID, events.RunSuspended{
		BaseEvent: events.NewBaseEvent(events.RunSuspendedEvent, state.WorkflowID),
		MaxRisk:   maxRisk,
	})

	logger.Info("Run suspended awaiting approval", "actions", len(state.Actions()))

	return state, nil
}

func (m *Manager) complete(ctx context.Context, state *models.WorkflowState, logger *slog.Logger) (*models.WorkflowState, error) {
	if err := m.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("persist finished run: %w", err)
	}

	if state.Failed() {
		m.publish(ctx, state.WorkflowID, events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, state.WorkflowID),
			Error:     state.Error,
		})
		logger.Error("Run failed", "error", state.Error)

		return state, nil
	}

	m.publish(ctx, state.WorkflowID, events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, state.WorkflowID),
		Reason:    state.Reason,
		Duration:  time.Since(state.StartedAt),
	})
	logger.Info("Run finished", "reason", state.Reason)

	return state, nil
}

// Resume applies a human decision to a suspended run and drives it to its
// terminal state. The store resolves the decision exactly once, so replayed
// decisions surface checkpoint.ErrAlreadyResolved instead of re-executing,
// and decisions for runs that never suspended surface
// checkpoint.ErrNotSuspended.
func (m *Manager) Resume(ctx context.Context, workflowID string, decision Decision) (*models.WorkflowState, error) {
	by := decision.By
	if by == "" {
		by = "unknown"
	}

	approval := models.ApprovalDenied
	details := "denied_by=" + by

	if decision.Approve {
		approval = models.ApprovalApproved
		details = "approved_by=" + by
	}

	state, err := m.store.Resolve(ctx, workflowID, approval, details)
	if err != nil {
		return nil, err
	}

	logger := m.logger.With("workflow_id", workflowID)
	logger.Info("Resuming run", "approval", approval, "by", by)

	if err := m.runner.Resume(ctx, state); err != nil {
		return nil, err
	}

	return m.complete(ctx, state, logger)
}

// Get returns a run's current durable state.
func (m *Manager) Get(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	return m.store.Get(ctx, workflowID)
}

// PendingApprovals returns every run waiting at the approval gate.
func (m *Manager) PendingApprovals(ctx context.Context) ([]*models.WorkflowState, error) {
	return m.store.Suspended(ctx)
}

// ExpireStale times out suspended runs whose approval window has elapsed
// and returns how many it expired. Runs decided concurrently are skipped.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	suspended, err := m.store.Suspended(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0

	for _, run := range suspended {
		if run.SuspendedAt == nil || now.Sub(*run.SuspendedAt) < m.approvalTimeout {
			continue
		}

		state, err := m.store.Resolve(ctx, run.WorkflowID, models.ApprovalTimedOut, "approval window elapsed")
		if err != nil {
			if checkpoint.IsAlreadyResolved(err) {
				continue
			}

			return expired, err
		}

		logger := m.logger.With("workflow_id", state.WorkflowID)

		if err := m.runner.Resume(ctx, state); err != nil {
			return expired, err
		}

		if _, err := m.complete(ctx, state, logger); err != nil {
			return expired, err
		}

		m.publish(ctx, state.WorkflowID, events.ApprovalExpired{
			BaseEvent:   events.NewBaseEvent(events.ApprovalExpiredEvent, state.WorkflowID),
			SuspendedAt: *run.SuspendedAt,
		})

		expired++
	}

	return expired, nil
}
