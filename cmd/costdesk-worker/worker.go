package main

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/costdesk/costdesk/pkg/checkpoint"
	"github.com/costdesk/costdesk/pkg/config"
	"github.com/costdesk/costdesk/pkg/eventbus"
	"github.com/costdesk/costdesk/pkg/events"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/otelhelper"
	"github.com/costdesk/costdesk/pkg/sweep"
	"github.com/costdesk/costdesk/pkg/workflow"
)

// Worker consumes approval decisions from the bus and keeps the sweeps
// running until the context is cancelled.
type Worker struct {
	workerID string
	manager  *workflow.Manager
	eventBus eventbus.EventBus
	cfg      config.Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewWorker(workerID string, manager *workflow.Manager, eventBus eventbus.EventBus, cfg config.Config, logger *slog.Logger, tracer trace.Tracer) *Worker {
	return &Worker{
		workerID: workerID,
		manager:  manager,
		eventBus: eventBus,
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
	}
}

// handleApprovalDecided resumes the decided run. A decision already applied
// elsewhere is acked and dropped; redelivering it could never succeed.
func (w *Worker) handleApprovalDecided(ctx context.Context, event any) error {
	decided, ok := event.(*events.ApprovalDecided)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.resume",
		attribute.String(otelhelper.WorkflowIDKey, decided.WorkflowID),
		attribute.String(otelhelper.WorkerIDKey, w.workerID),
	)
	defer span.End()

	logger := w.logger.With("workflow_id", decided.WorkflowID)

	state, err := w.manager.Resume(ctx, decided.WorkflowID, workflow.Decision{
		Approve: decided.Approve,
		By:      decided.By,
		Note:    decided.Note,
	})
	if err != nil {
		if checkpoint.IsAlreadyResolved(err) || checkpoint.IsRunNotFound(err) || checkpoint.IsNotSuspended(err) {
			logger.WarnContext(ctx, "Dropping stale approval decision", "error", err)

			return nil
		}

		otelhelper.SetError(span, err,
			attribute.String(otelhelper.WorkflowIDKey, decided.WorkflowID))

		return err
	}

	logger.InfoContext(ctx, "Resumed run from approval decision",
		"approval", state.Approval,
		"reason", state.Reason)

	return nil
}

// Start subscribes to the approval topic and starts the sweeps, then blocks
// until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.eventBus.Handle(events.ApprovalDecidedEvent, w.handleApprovalDecided); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if w.cfg.Sweep.WatchlistPath != "" {
		sweeper := sweep.New(w.manager, models.NewTenantContext("default"),
			w.cfg.Sweep.WatchlistPath, 0, w.logger)

		if err := sweeper.Start(ctx, w.cfg.Sweep.DetectionSchedule, w.cfg.Sweep.ExpireSchedule); err != nil {
			return err
		}

		defer sweeper.Stop()

		w.logger.InfoContext(ctx, "Sweeps scheduled",
			"detection", w.cfg.Sweep.DetectionSchedule,
			"expiry", w.cfg.Sweep.ExpireSchedule)
	}

	w.logger.InfoContext(ctx, "Worker started")

	<-ctx.Done()

	return nil
}
