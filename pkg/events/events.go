// Package events defines the event types published over the run and
// approval topics.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/costdesk/costdesk/pkg/models"
)

type EventType string

// Kafka topics.
const RunTopic = "costdesk.runs"           // Run lifecycle events
const ApprovalTopic = "costdesk.approvals" // Approval requests and decisions

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent     EventType = "run.started"
	StageCompletedEvent EventType = "run.stage.completed"
	RunSuspendedEvent   EventType = "run.suspended"
	RunCompletedEvent   EventType = "run.completed"
	RunFailedEvent      EventType = "run.failed"

	// Approval gate events.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalDecidedEvent   EventType = "approval.decided"
	ApprovalExpiredEvent   EventType = "approval.expired"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

type RunStarted struct {
	BaseEvent

	Tenant    models.TenantContext `json:"tenant"`
	Service   string               `json:"service"`
	AccountID string               `json:"account_id"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

type StageCompleted struct {
	BaseEvent

	Stage           string `json:"stage"`
	ShouldTerminate bool   `json:"should_terminate"`
}

func (s StageCompleted) GetType() EventType {
	return StageCompletedEvent
}

// RunSuspended is published when a run checkpoints at the approval gate.
type RunSuspended struct {
	BaseEvent

	MaxRisk models.RiskLevel `json:"max_risk"`
}

func (r RunSuspended) GetType() EventType {
	return RunSuspendedEvent
}

type RunCompleted struct {
	BaseEvent

	Reason   models.TerminationReason `json:"reason"`
	Duration time.Duration            `json:"duration"`
}

func (r RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	Error string `json:"error"`
}

func (r RunFailed) GetType() EventType {
	return RunFailedEvent
}

// ApprovalRequested asks a human to decide a suspended run. Actions carry
// everything a reviewer needs; no other lookup is required to decide.
type ApprovalRequested struct {
	BaseEvent

	Summary string                     `json:"summary"`
	Actions []models.RecommendedAction `json:"actions"`
}

func (a ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

// ApprovalDecided carries a human decision back to the worker that resumes
// the run.
type ApprovalDecided struct {
	BaseEvent

	Approve bool   `json:"approve"`
	By      string `json:"by"`
	Note    string `json:"note,omitempty"`
}

func (a ApprovalDecided) GetType() EventType {
	return ApprovalDecidedEvent
}

// ApprovalExpired marks a run whose approval window lapsed.
type ApprovalExpired struct {
	BaseEvent

	SuspendedAt time.Time `json:"suspended_at"`
}

func (a ApprovalExpired) GetType() EventType {
	return ApprovalExpiredEvent
}
