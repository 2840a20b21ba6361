package web_test

import (
	"bytes"
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

	"github.com/flowlet-io/flowlet/pkg/dispatcher"
	"github.com/flowlet-io/flowlet/pkg/engine"
	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence/memory"
	"github.com/flowlet-io/flowlet/pkg/registry"
	"github.com/flowlet-io/flowlet/pkg/scheduler"
	"github.com/flowlet-io/flowlet/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	p := memory.NewPersistence()
	logger := slog.Default()
	reg := registry.NewRegistry(logger)
	eng := engine.NewEngine(logger, p, reg)
	sched := scheduler.NewScheduler(logger, p, eng)
	disp := dispatcher.NewDispatcher(logger, p, eng)
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(p, eng, sched, disp, reg, validate)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/run", handlers.RunWorkflow)
	w.Get("/:id/runs", handlers.GetWorkflowRuns)

	app.Get("/runs/:id", handlers.GetRun)
	app.All("/webhooks/*", handlers.HandleWebhook)
	app.Post("/scheduler/tick", handlers.TickScheduler)
	app.Get("/node-types", handlers.GetNodeTypes)
	app.Get("/health", handlers.HealthCheck)

	return app, p
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	responseBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, responseBody
}

func TestCreateWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/", web.CreateWorkflowRequest{
		Name:    "Daily Digest",
		Trigger: models.Trigger{Kind: models.TriggerKindSchedule, Cron: "0 9 * * *"},
		Nodes: []*models.Node{
			{ID: "generate", Type: "ai", Config: map[string]any{"prompt": "hi"}},
		},
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "Daily Digest", workflow.Name)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
}

func TestCreateWorkflowValidation(t *testing.T) {
	app, _ := setupTestApp(t)

	tests := []struct {
		name string
		req  web.CreateWorkflowRequest
	}{
		{
			name: "name too short",
			req: web.CreateWorkflowRequest{
				Name:    "ab",
				Trigger: models.Trigger{Kind: models.TriggerKindManual},
			},
		},
		{
			name: "schedule without cron",
			req: web.CreateWorkflowRequest{
				Name:    "No Cron",
				Trigger: models.Trigger{Kind: models.TriggerKindSchedule},
			},
		},
		{
			name: "webhook without path",
			req: web.CreateWorkflowRequest{
				Name:    "No Path",
				Trigger: models.Trigger{Kind: models.TriggerKindWebhook},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, app, http.MethodPost, "/workflows/", tt.req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCreateWorkflowRejectsMalformedDocument(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/", map[string]any{
		"name":    "Daily Digest",
		"trigger": map[string]any{"kind": "manual"},
		"nodes": []map[string]any{
			{"id": "generate"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid workflow document")
}

func TestUpdateWorkflowRejectsMalformedDocument(t *testing.T) {
	app, p := setupTestApp(t)

	saveTestWorkflow(t, p, "wf-1", models.Trigger{Kind: models.TriggerKindManual})

	resp, body := doJSON(t, app, http.MethodPatch, "/workflows/wf-1", map[string]any{
		"nodes": []map[string]any{
			{"id": "generate"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid workflow document")
}

func TestGetWorkflowNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateWorkflowStatus(t *testing.T) {
	app, p := setupTestApp(t)

	saveTestWorkflow(t, p, "wf-1", models.Trigger{Kind: models.TriggerKindManual})

	status := models.WorkflowStatusPaused

	resp, body := doJSON(t, app, http.MethodPatch, "/workflows/wf-1", web.UpdateWorkflowRequest{
		Status: &status,
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, models.WorkflowStatusPaused, workflow.Status)
}

func TestDeleteWorkflow(t *testing.T) {
	app, p := setupTestApp(t)

	saveTestWorkflow(t, p, "wf-1", models.Trigger{Kind: models.TriggerKindManual})

	resp, _ := doJSON(t, app, http.MethodDelete, "/workflows/wf-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/workflows/wf-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunWorkflow(t *testing.T) {
	app, p := setupTestApp(t)

	saveTestWorkflow(t, p, "wf-1", models.Trigger{Kind: models.TriggerKindManual})

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/wf-1/run", web.RunWorkflowRequest{
		Input: map[string]any{"source": "test"},
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run models.Run
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "wf-1", run.WorkflowID)
}

func TestRunWorkflowNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/missing/run", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWorkflowRuns(t *testing.T) {
	app, p := setupTestApp(t)

	saveTestWorkflow(t, p, "wf-1", models.Trigger{Kind: models.TriggerKindManual})

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/wf-1/run", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodGet, "/workflows/wf-1/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Runs       []*models.Run `json:"runs"`
		TotalCount int           `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Equal(t, 1, listing.TotalCount)
}

func TestHandleWebhook(t *testing.T) {
	app, p := setupTestApp(t)

	workflow := &models.Workflow{
		ID:     "wf-hook",
		Name:   "Hooked",
		Status: models.WorkflowStatusActive,
		Trigger: models.Trigger{
			Kind: models.TriggerKindWebhook,
			Path: "/orders",
		},
	}
	require.NoError(t, p.Workflows().Save(t.Context(), workflow))

	resp, body := doJSON(t, app, http.MethodPost, "/webhooks/orders", map[string]any{"order_id": "42"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Message   string              `json:"message"`
		Workflows []dispatcher.Result `json:"workflows"`
		Received  map[string]any      `json:"received"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.NotEmpty(t, result.Message)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, "wf-hook", result.Workflows[0].WorkflowID)
	assert.NotEmpty(t, result.Workflows[0].RunID)
	assert.Equal(t, map[string]any{"order_id": "42"}, result.Received)
}

func TestHandleWebhookUnknownPath(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/webhooks/nope", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSchedulerTick(t *testing.T) {
	app, p := setupTestApp(t)

	workflow := &models.Workflow{
		ID:     "wf-cron",
		Name:   "Cron",
		Status: models.WorkflowStatusActive,
		Trigger: models.Trigger{
			Kind: models.TriggerKindSchedule,
			Cron: "* * * * *",
		},
	}
	require.NoError(t, p.Workflows().Save(t.Context(), workflow))

	resp, body := doJSON(t, app, http.MethodPost, "/scheduler/tick", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Message  string                 `json:"message"`
		Executed int                    `json:"executed"`
		Results  []scheduler.TickResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.NotEmpty(t, result.Message)
	assert.Equal(t, 1, result.Executed)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "wf-cron", result.Results[0].WorkflowID)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	// No executors registered yet, so the health endpoint reports degraded.
	resp, _ := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func saveTestWorkflow(t *testing.T, p *memory.Persistence, id string, trigger models.Trigger) {
	t.Helper()

	err := p.Workflows().Save(t.Context(), &models.Workflow{
		ID:      id,
		Name:    "Test Workflow",
		Status:  models.WorkflowStatusActive,
		Trigger: trigger,
		Nodes: []*models.Node{
			{ID: "step", Type: "unknown", Title: "Step"},
		},
	})
	require.NoError(t, err)
}
