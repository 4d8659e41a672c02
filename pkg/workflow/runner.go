package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/costdesk/costdesk/pkg/models"
)

// ErrSuspended reports that a run checkpointed at the approval gate instead
// of finishing. It is the runner's only non-error stop condition.
var ErrSuspended = errors.New("run suspended awaiting approval")

// expectedGrowthCloseConfidence is the confidence at or above which an
// expected_growth triage closes the run without analysis.
const expectedGrowthCloseConfidence = 0.85

// StageHook observes each completed stage. Hooks must not mutate state.
type StageHook func(ctx context.Context, stage string, state *models.WorkflowState)

// Runner walks a run through the graph. It owns routing only; stage
// behavior lives in Stages.
type Runner struct {
	stages  *Stages
	onStage StageHook
}

// NewRunner creates a Runner. hook may be nil.
func NewRunner(stages *Stages, hook StageHook) *Runner {
	return &Runner{stages: stages, onStage: hook}
}

func (r *Runner) emit(ctx context.Context, stage string, state *models.WorkflowState) {
	if r.onStage != nil {
		r.onStage(ctx, stage, state)
	}
}

func (r *Runner) finalize(state *models.WorkflowState) {
	state.ShouldTerminate = true

	if state.Reason == "" {
		state.Reason = models.ReasonCompleted
	}
}

// Run executes a fresh run from the watcher. It returns ErrSuspended when
// the run checkpoints at the approval gate; any other outcome, including
// stage errors, finishes the run and returns nil.
func (r *Runner) Run(ctx context.Context, state *models.WorkflowState) error {
	r.stages.watcher(ctx, state)
	r.emit(ctx, models.PhaseWatcher, state)

	if state.ShouldTerminate || state.Failed() {
		r.finalize(state)

		return nil
	}

	r.stages.triager(ctx, state)
	r.emit(ctx, models.PhaseTriager, state)

	if state.Failed() {
		r.finalize(state)

		return nil
	}

	// Confident organic growth closes without a remediation plan.
	if state.Triage != nil &&
		state.Triage.Category == models.CategoryExpectedGrowth &&
		state.Triage.Confidence >= expectedGrowthCloseConfidence {
		state.Reason = models.ReasonExpectedGrowthHighConfidence
		r.finalize(state)

		return nil
	}

	r.stages.analyst(ctx, state)
	r.emit(ctx, models.PhaseAnalyst, state)

	if state.Failed() {
		r.finalize(state)

		return nil
	}

	if len(state.Actions()) == 0 {
		state.Reason = models.ReasonNoActions
		r.finalize(state)

		return nil
	}

	r.stages.hilGate(ctx, state)
	r.emit(ctx, models.PhaseHILGate, state)

	switch state.Approval {
	case models.ApprovalPending:
		now := time.Now().UTC()
		state.SuspendedAt = &now

		return ErrSuspended
	case models.ApprovalDenied:
		state.Reason = models.ReasonPolicyDenied
		r.finalize(state)

		return nil
	default:
		return r.finish(ctx, state)
	}
}

// Resume continues a run whose approval was resolved. The checkpoint store
// already applied the decision; the runner only routes on it.
func (r *Runner) Resume(ctx context.Context, state *models.WorkflowState) error {
	switch state.Approval {
	case models.ApprovalDenied:
		state.Reason = models.ReasonHumanDenied
		r.finalize(state)

		return nil
	case models.ApprovalTimedOut:
		state.Reason = models.ReasonApprovalTimedOut
		r.finalize(state)

		return nil
	case models.ApprovalApproved, models.ApprovalAutoApproved:
		return r.finish(ctx, state)
	default:
		state.Fail("resume: approval still pending")
		r.finalize(state)

		return nil
	}
}

// finish runs the post-approval tail of the graph: executor then verifier.
func (r *Runner) finish(ctx context.Context, state *models.WorkflowState) error {
	r.stages.executorStage(ctx, state)
	r.emit(ctx, models.PhaseExecutor, state)

	if state.Failed() {
		r.finalize(state)

		return nil
	}

	r.stages.verifierStage(ctx, state)
	r.emit(ctx, models.PhaseVerifier, state)

	r.finalize(state)

	return nil
}
