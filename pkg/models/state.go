package models

import (
	"time"

	"github.com/google/uuid"
)

// Stage names, in graph order. CurrentPhase always holds the name of the
// last-completed stage.
const (
	PhaseWatcher  = "watcher"
	PhaseTriager  = "triager"
	PhaseAnalyst  = "analyst"
	PhaseHILGate  = "hil_gate"
	PhaseExecutor = "executor"
	PhaseVerifier = "verifier"
)

// WorkflowState is the single mutable record threaded through a run. Every
// optional field is written by exactly one stage and never overwritten,
// except Approval, which transitions pending -> {approved, denied, timed_out}
// exactly once on resume. WorkflowID is the sole key for persisting and
// resuming suspended runs.
//
// Approval defaults to pending, so on its own it does not mean the run is
// waiting at the gate: runs that terminate before hil_gate keep the default.
// Suspension is marked by SuspendedAt, written only by the gate stage.
type WorkflowState struct {
	WorkflowID string    `json:"workflow_id"`
	StartedAt  time.Time `json:"started_at"`

	Tenant   TenantContext   `json:"tenant"`
	Anomaly  *CostAnomaly    `json:"anomaly,omitempty"`
	Triage   *TriageResult   `json:"triage,omitempty"`
	Analysis *AnalysisResult `json:"analysis,omitempty"`

	Approval        ApprovalStatus `json:"approval"`
	ApprovalDetails string         `json:"approval_details,omitempty"`
	SuspendedAt     *time.Time     `json:"suspended_at,omitempty"`

	Executions   []ExecutionResult   `json:"executions,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`

	CurrentPhase    string            `json:"current_phase"`
	ShouldTerminate bool              `json:"should_terminate"`
	Reason          TerminationReason `json:"reason,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// NewWorkflowState creates a run state with generated defaults.
func NewWorkflowState(tenant TenantContext) *WorkflowState {
	return &WorkflowState{
		WorkflowID:   uuid.New().String(),
		StartedAt:    time.Now().UTC(),
		Tenant:       tenant,
		Approval:     ApprovalPending,
		CurrentPhase: PhaseWatcher,
	}
}

// Fail marks the run as terminally errored. The first error wins; routing
// short-circuits to termination once set.
func (s *WorkflowState) Fail(msg string) {
	if s.Error == "" {
		s.Error = msg
	}

	s.ShouldTerminate = true

	if s.Reason == "" {
		s.Reason = ReasonStageError
	}
}

// Failed reports whether a terminal error has been recorded.
func (s *WorkflowState) Failed() bool {
	return s.Error != ""
}

// Suspended reports whether the run is parked at the approval gate: it
// checkpointed there and no decision has been applied yet.
func (s *WorkflowState) Suspended() bool {
	return s.SuspendedAt != nil && s.Approval == ApprovalPending
}

// Actions returns the proposed actions, or nil when analysis has not run.
func (s *WorkflowState) Actions() []RecommendedAction {
	if s.Analysis == nil {
		return nil
	}

	return s.Analysis.RecommendedActions
}
