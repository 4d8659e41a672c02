// Package workflow drives a remediation run through its staged graph:
// watcher, triager, analyst, hil_gate, executor, verifier. Routing is
// deterministic, errors short-circuit to termination, and the only place a
// run may stop mid-graph is the approval gate.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/policy"
	"github.com/costdesk/costdesk/pkg/verifier"
)

// Classifier assigns a root-cause category to an anomaly. Satisfied by
// triage.Classifier.
type Classifier interface {
	Classify(ctx context.Context, anomaly models.CostAnomaly, windowStart, windowEnd string) models.TriageResult
}

// Planner proposes remediation actions. Satisfied by analysis.Planner.
type Planner interface {
	Plan(ctx context.Context, anomaly models.CostAnomaly, windowStart, windowEnd string) (models.AnalysisResult, error)
}

// ActionRunner executes approved actions. Satisfied by executor.Executor.
type ActionRunner interface {
	Execute(ctx context.Context, approval models.ApprovalStatus, actions []models.RecommendedAction,
		resourceTagsByARN map[string]map[string]string) ([]models.ExecutionResult, error)
}

// Stages bundles the collaborators each graph stage needs. WindowStart and
// WindowEnd override the evidence window; when empty it is derived from the
// anomaly's detection time and lookback.
type Stages struct {
	Classifier Classifier
	Planner    Planner
	Executor   ActionRunner
	Policy     *policy.Engine

	Cost  evidence.CostSource
	Infra evidence.InfraSource

	WindowStart string
	WindowEnd   string
}

func (s *Stages) window(anomaly *models.CostAnomaly) (string, string) {
	if s.WindowStart != "" && s.WindowEnd != "" {
		return s.WindowStart, s.WindowEnd
	}

	end := anomaly.DetectedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}

	start := end.AddDate(0, 0, -anomaly.LookbackDays)

	return start.Format(time.DateOnly), end.Format(time.DateOnly)
}

// watcher gates entry: a run without an anomaly terminates immediately.
func (s *Stages) watcher(_ context.Context, state *models.WorkflowState) {
	state.CurrentPhase = models.PhaseWatcher

	if state.Anomaly == nil {
		state.ShouldTerminate = true
		state.Reason = models.ReasonNoAnomaly
	}
}

func (s *Stages) triager(ctx context.Context, state *models.WorkflowState) {
	state.CurrentPhase = models.PhaseTriager

	if state.Anomaly == nil {
		state.Fail("triager: missing anomaly")

		return
	}

	start, end := s.window(state.Anomaly)
	result := s.Classifier.Classify(ctx, *state.Anomaly, start, end)
	state.Triage = &result
}

func (s *Stages) analyst(ctx context.Context, state *models.WorkflowState) {
	state.CurrentPhase = models.PhaseAnalyst

	if state.Anomaly == nil {
		state.Fail("analyst: missing anomaly")

		return
	}

	start, end := s.window(state.Anomaly)

	result, err := s.Planner.Plan(ctx, *state.Anomaly, start, end)
	if err != nil {
		state.Fail(fmt.Sprintf("analyst: %v", err))

		return
	}

	state.Analysis = &result
}

// hilGate applies policy. A pending outcome is the suspension signal; the
// runner checkpoints and stops there.
func (s *Stages) hilGate(_ context.Context, state *models.WorkflowState) {
	state.CurrentPhase = models.PhaseHILGate

	decision := s.Policy.Decide(state.Actions())
	state.Approval = decision.Approval
	state.ApprovalDetails = decision.Details
}

func (s *Stages) executorStage(ctx context.Context, state *models.WorkflowState) {
	state.CurrentPhase = models.PhaseExecutor

	actions := state.Actions()

	tagsByARN := make(map[string]map[string]string)

	for _, a := range actions {
		if a.TargetResource == "" {
			continue
		}

		tags, err := s.Infra.ResourceTags(ctx, a.TargetResource)
		if err != nil {
			state.Fail(fmt.Sprintf("executor: resource tags for %s: %v", a.TargetResource, err))

			return
		}

		tagsByARN[a.TargetResource] = tags
	}

	results, err := s.Executor.Execute(ctx, state.Approval, actions, tagsByARN)
	state.Executions = results

	if err != nil {
		state.Fail(fmt.Sprintf("executor: %v", err))
	}
}

func (s *Stages) verifierStage(ctx context.Context, state *models.WorkflowState) {
	state.CurrentPhase = models.PhaseVerifier

	if state.Anomaly == nil {
		state.Fail("verifier: missing anomaly")

		return
	}

	start, end := s.window(state.Anomaly)

	result, err := verifier.Verify(ctx, state.Anomaly.Service, state.Anomaly.AccountID,
		s.Cost, s.Infra, start, end)
	if err != nil {
		state.Fail(fmt.Sprintf("verifier: %v", err))

		return
	}

	state.Verification = &result
}
