// Package checkpoint provides durable storage for suspended remediation
// runs. A run checkpoints when it reaches the human-approval gate and is
// reloaded, possibly by a different process, when the decision arrives.
package checkpoint

import (
	"context"

	"github.com/costdesk/costdesk/pkg/models"
)

// Store persists run state across suspension. Resolve is the only way a
// pending approval transitions: it applies the decision exactly once and
// returns the updated state, so two operators racing on the same run cannot
// both win.
type Store interface {
	Save(ctx context.Context, state *models.WorkflowState) error
	Get(ctx context.Context, workflowID string) (*models.WorkflowState, error)
	Suspended(ctx context.Context) ([]*models.WorkflowState, error)
	Resolve(ctx context.Context, workflowID string, approval models.ApprovalStatus, details string) (*models.WorkflowState, error)
	Delete(ctx context.Context, workflowID string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
