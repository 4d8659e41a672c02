package web

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/costdesk/costdesk/pkg/events"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/workflow"
)

// RunService is the slice of the workflow manager the API needs. Satisfied by
// workflow.Manager.
type RunService interface {
	Start(ctx context.Context, tenant models.TenantContext, anomaly *models.CostAnomaly) (*models.WorkflowState, error)
	Resume(ctx context.Context, workflowID string, decision workflow.Decision) (*models.WorkflowState, error)
	Get(ctx context.Context, workflowID string) (*models.WorkflowState, error)
	PendingApprovals(ctx context.Context) ([]*models.WorkflowState, error)
}

type APIHandlers struct {
	runs      RunService
	tenant    models.TenantContext
	validator *validator.Validate
}

func NewAPIHandlers(runs RunService, tenant models.TenantContext, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		runs:      runs,
		tenant:    tenant,
		validator: validate,
	}
}

// StartRun opens a remediation run for a reported anomaly. A suspended run
// returns 202, everything else 201.
func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	anomaly := req.Anomaly()

	state, err := h.runs.Start(c.Context(), h.tenant, &anomaly)
	if err != nil {
		return internalError(c, err)
	}

	status := fiber.StatusCreated
	if state.Suspended() {
		status = fiber.StatusAccepted
	}

	return c.Status(status).JSON(state)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	state, err := h.runs.Get(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(state)
}

// ListApprovals returns every run waiting at the approval gate, carrying
// everything a reviewer needs to decide.
func (h *APIHandlers) ListApprovals(c fiber.Ctx) error {
	pending, err := h.runs.PendingApprovals(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	out := make([]PendingApprovalResponse, 0, len(pending))

	for _, state := range pending {
		item := PendingApprovalResponse{
			WorkflowID:      state.WorkflowID,
			ApprovalDetails: state.ApprovalDetails,
			Actions:         state.Actions(),
		}

		if state.SuspendedAt != nil {
			item.SuspendedAt = state.SuspendedAt.Format(time.RFC3339)
		}

		if state.Triage != nil {
			item.Summary = state.Triage.Summary
		}

		out = append(out, item)
	}

	return c.JSON(fiber.Map{
		"approvals":   out,
		"total_count": len(out),
	})
}

// DecideApproval resolves a suspended run. The body is schema-checked before
// anything touches a checkpoint, and its workflow_id must name the run in the
// URL.
func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	if err := events.ValidateApprovalDecision(c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req ApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.WorkflowID != id {
		return badRequest(c, "workflow_id does not match run ID in path")
	}

	state, err := h.runs.Resume(c.Context(), id, workflow.Decision{
		Approve: req.Approve,
		By:      req.By,
		Note:    req.Note,
	})
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(state)
}
