package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costdesk/costdesk/pkg/analysis"
	"github.com/costdesk/costdesk/pkg/checkpoint/file"
	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/executor"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/policy"
	"github.com/costdesk/costdesk/pkg/triage"
	"github.com/costdesk/costdesk/pkg/web"
	"github.com/costdesk/costdesk/pkg/workflow"
)

// Empty evidence sources: triage lands on unknown and the real planner
// proposes the low-risk budget alert, which auto-approves.
type nilCost struct{}

func (nilCost) CostTimeseries(context.Context, string, string, string, string) (evidence.CostTimeseries, error) {
	return evidence.CostTimeseries{}, nil
}

func (nilCost) CURLineItems(context.Context, string, string, string, string) ([]evidence.CURLineItem, error) {
	return nil, nil
}

func (nilCost) RICoverage(context.Context, string, string, string) (evidence.Coverage, error) {
	return evidence.Coverage{}, nil
}

func (nilCost) RIUtilization(context.Context, string, string, string) (evidence.Utilization, error) {
	return evidence.Utilization{}, nil
}

func (nilCost) SPCoverage(context.Context, string, string, string) (evidence.Coverage, error) {
	return evidence.Coverage{}, nil
}

func (nilCost) SPUtilization(context.Context, string, string, string) (evidence.Utilization, error) {
	return evidence.Utilization{}, nil
}

type nilInfra struct{}

func (nilInfra) RecentDeploys(context.Context, string) ([]evidence.Deploy, error) {
	return nil, nil
}

func (nilInfra) Metrics(context.Context, string, string, string) (evidence.MetricWindow, error) {
	return evidence.MetricWindow{}, nil
}

func (nilInfra) ResourceTags(context.Context, string) (map[string]string, error) {
	return nil, nil
}

func (nilInfra) ServiceHealth(context.Context, string) (evidence.ServiceHealth, error) {
	return evidence.ServiceHealth{OK: true}, nil
}

// mediumRiskPlanner forces the pending-approval path.
type mediumRiskPlanner struct{}

func (mediumRiskPlanner) Plan(context.Context, models.CostAnomaly, string, string) (models.AnalysisResult, error) {
	action := models.NewRecommendedAction("resize the fleet", "modify_asg", models.RiskMedium, "restore previous size")

	return models.AnalysisResult{
		RecommendedActions: []models.RecommendedAction{action},
		Confidence:         0.5,
	}, nil
}

// noActionsPlanner closes the run at the analyst with nothing to approve.
type noActionsPlanner struct{}

func (noActionsPlanner) Plan(context.Context, models.CostAnomaly, string, string) (models.AnalysisResult, error) {
	return models.AnalysisResult{}, nil
}

func setupTestApp(t *testing.T, planner workflow.Planner) *fiber.App {
	t.Helper()

	logger := slog.Default()
	cost := nilCost{}
	infra := nilInfra{}

	stages := &workflow.Stages{
		Classifier: triage.NewClassifier(cost, infra, nil, logger),
		Planner:    analysis.NewPlanner(cost),
		Executor:   executor.New(infra, logger),
		Policy:     policy.NewEngine(),
		Cost:       cost,
		Infra:      infra,
	}
	if planner != nil {
		stages.Planner = planner
	}

	store := file.NewStore(t.TempDir())
	manager := workflow.NewManager(store, nil, stages, logger, 0)

	handlers := web.NewAPIHandlers(manager, models.NewTenantContext("acme"), validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	runs := app.Group("/runs")
	runs.Post("/", handlers.StartRun)
	runs.Get("/:id", handlers.GetRun)
	runs.Post("/:id/approval", handlers.DecideApproval)

	app.Get("/approvals", handlers.ListApprovals)

	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func TestStartRunAutoApproved(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, nil)

	resp, body := postJSON(t, app, "/runs/", web.StartRunRequest{
		Service:      "EC2",
		AccountID:    "123456789012",
		DeltaDollars: 750,
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var state models.WorkflowState
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Equal(t, models.ApprovalAutoApproved, state.Approval)
	assert.Equal(t, models.ReasonCompleted, state.Reason)
}

func TestStartRunValidation(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, nil)

	resp, _ := postJSON(t, app, "/runs/", web.StartRunRequest{Service: "EC2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartRunSuspendsAndDecide(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, mediumRiskPlanner{})

	resp, body := postJSON(t, app, "/runs/", web.StartRunRequest{
		Service:      "EC2",
		AccountID:    "123456789012",
		DeltaDollars: 750,
	})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var state models.WorkflowState
	require.NoError(t, json.Unmarshal(body, &state))
	require.Equal(t, models.ApprovalPending, state.Approval)

	// The run shows up in the approval queue.
	resp, body = getJSON(t, app, "/approvals")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var queue struct {
		Approvals  []web.PendingApprovalResponse `json:"approvals"`
		TotalCount int                           `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &queue))
	require.Equal(t, 1, queue.TotalCount)
	assert.Equal(t, state.WorkflowID, queue.Approvals[0].WorkflowID)
	assert.NotEmpty(t, queue.Approvals[0].Actions)

	// Approve it.
	resp, body = postJSON(t, app, "/runs/"+state.WorkflowID+"/approval", web.ApprovalRequest{
		WorkflowID: state.WorkflowID,
		Approve:    true,
		By:         "casey",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var resumed models.WorkflowState
	require.NoError(t, json.Unmarshal(body, &resumed))
	assert.Equal(t, models.ApprovalApproved, resumed.Approval)
	assert.Equal(t, "approved_by=casey", resumed.ApprovalDetails)
	assert.Equal(t, models.ReasonCompleted, resumed.Reason)

	// A second decision conflicts.
	resp, _ = postJSON(t, app, "/runs/"+state.WorkflowID+"/approval", web.ApprovalRequest{
		WorkflowID: state.WorkflowID,
		Approve:    false,
		By:         "casey",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFinishedRunIsNotListedOrDecidable(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, noActionsPlanner{})

	// Finishes with no actions, so approval keeps its pending default.
	resp, body := postJSON(t, app, "/runs/", web.StartRunRequest{
		Service:      "EC2",
		AccountID:    "123456789012",
		DeltaDollars: 750,
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var state models.WorkflowState
	require.NoError(t, json.Unmarshal(body, &state))
	require.Equal(t, models.ReasonNoActions, state.Reason)
	require.Equal(t, models.ApprovalPending, state.Approval)

	// Not in the approval queue.
	resp, body = getJSON(t, app, "/approvals")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var queue struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &queue))
	assert.Zero(t, queue.TotalCount)

	// And a decision for it conflicts instead of reviving the run.
	resp, _ = postJSON(t, app, "/runs/"+state.WorkflowID+"/approval", web.ApprovalRequest{
		WorkflowID: state.WorkflowID,
		Approve:    true,
		By:         "mallory",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDecideApprovalSchemaRejectsMissingBy(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, mediumRiskPlanner{})

	resp, body := postJSON(t, app, "/runs/run-1/approval", map[string]any{
		"workflow_id": "run-1",
		"approve":     true,
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "by")
}

func TestDecideApprovalPathMismatch(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, mediumRiskPlanner{})

	resp, _ := postJSON(t, app, "/runs/run-1/approval", web.ApprovalRequest{
		WorkflowID: "run-2",
		Approve:    true,
		By:         "casey",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, nil)

	resp, _ := getJSON(t, app, "/runs/run-missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDecideApprovalUnknownRun(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, nil)

	resp, _ := postJSON(t, app, "/runs/run-missing/approval", web.ApprovalRequest{
		WorkflowID: "run-missing",
		Approve:    true,
		By:         "casey",
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
