// Package executor runs approved remediation actions. Every execution is
// preceded by the policy safety gate and bracketed by state snapshots.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/policy"
)

// Executor performs deterministic action execution.
type Executor struct {
	infra  evidence.InfraSource
	logger *slog.Logger
}

// New creates an Executor backed by the given infra source.
func New(infra evidence.InfraSource, logger *slog.Logger) *Executor {
	return &Executor{
		infra:  infra,
		logger: logger.With("module", "executor"),
	}
}

// Snapshot captures resource state around an action. For tagged resources
// the snapshot records the tag set; the post-action snapshot reuses it until
// a real mutation backend lands.
func (e *Executor) Snapshot(ctx context.Context, action models.RecommendedAction) (map[string]any, error) {
	if action.TargetResource == "" {
		return map[string]any{}, nil
	}

	tags, err := e.infra.ResourceTags(ctx, action.TargetResource)
	if err != nil {
		return nil, fmt.Errorf("executor: snapshot tags for %s: %w", action.TargetResource, err)
	}

	return map[string]any{"tags": tags}, nil
}

// Execute runs each approved action sequentially, re-checking the policy
// safety gate first. A safety violation fails the whole batch before any
// action runs; a snapshot failure stops execution at that action.
func (e *Executor) Execute(
	ctx context.Context,
	approval models.ApprovalStatus,
	actions []models.RecommendedAction,
	resourceTagsByARN map[string]map[string]string,
) ([]models.ExecutionResult, error) {
	if err := policy.EnforceExecutorSafety(approval, actions, resourceTagsByARN); err != nil {
		return nil, err
	}

	results := make([]models.ExecutionResult, 0, len(actions))

	for _, a := range actions {
		pre, err := e.Snapshot(ctx, a)
		if err != nil {
			return results, fmt.Errorf("executor: pre-snapshot: %w", err)
		}

		e.logger.Info("Executing action",
			"action_id", a.ActionID,
			"action_type", a.ActionType,
			"target", a.TargetResource)

		// TODO: dispatch to a real mutation backend per action type; until
		// then execution records intent and keeps the pre-state as post.
		results = append(results, models.ExecutionResult{
			ActionID:           a.ActionID,
			ExecutedAt:         time.Now().UTC(),
			Success:            true,
			Details:            fmt.Sprintf("executed %s on %s", a.ActionType, a.TargetResource),
			RollbackAvailable:  true,
			PreActionSnapshot:  pre,
			PostActionSnapshot: pre,
		})
	}

	return results, nil
}
