package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowlet-io/flowlet/pkg/dispatcher"
	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
	"github.com/flowlet-io/flowlet/pkg/registry"
	"github.com/flowlet-io/flowlet/pkg/scheduler"
	"github.com/flowlet-io/flowlet/pkg/validation"
)

type APIHandlers struct {
	persistence persistence.Persistence
	runner      scheduler.Runner
	scheduler   *scheduler.Scheduler
	dispatcher  *dispatcher.Dispatcher
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	p persistence.Persistence,
	runner scheduler.Runner,
	sched *scheduler.Scheduler,
	disp *dispatcher.Dispatcher,
	reg *registry.Registry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		runner:      runner,
		scheduler:   sched,
		dispatcher:  disp,
		registry:    reg,
		validator:   validate,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows().GetAll(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.Workflows().GetByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	var document map[string]any
	if err := json.Unmarshal(c.Body(), &document); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := validation.ValidateDocument(document); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	status := req.Status
	if status == "" {
		status = models.WorkflowStatusDraft
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Status:      status,
		Trigger:     req.Trigger,
		Nodes:       req.Nodes,
		Connections: req.Connections,
		ProjectID:   req.ProjectID,
	}

	if err := validation.ValidateWorkflow(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.Workflows().Save(c.Context(), workflow); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.persistence.Workflows().GetByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Status != nil {
		existing.Status = *req.Status
	}

	if req.Trigger != nil {
		existing.Trigger = *req.Trigger
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Connections != nil {
		existing.Connections = req.Connections
	}

	if err := validateMergedDocument(existing); err != nil {
		return badRequest(c, err.Error())
	}

	if err := validation.ValidateWorkflow(existing); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.Workflows().Save(c.Context(), existing); err != nil {
		return internalError(c, err)
	}

	return c.JSON(existing)
}

// validateMergedDocument round-trips the patched workflow through JSON so
// the document schema applies to partial updates too.
func validateMergedDocument(workflow *models.Workflow) error {
	raw, err := json.Marshal(workflow)
	if err != nil {
		return err
	}

	var document map[string]any
	if err := json.Unmarshal(raw, &document); err != nil {
		return err
	}

	return validation.ValidateDocument(document)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.persistence.Workflows().Delete(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RunWorkflow starts a manual run and waits for it to finish. Manual runs
// are allowed regardless of workflow status.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req RunWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.runner.Run(c.Context(), id, req.Input)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "workflow not found")
		}

		// The run itself failed; the run record carries the detail.
		if run != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(run)
		}

		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, err := h.persistence.Workflows().GetByID(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	runs, err := h.persistence.Runs().ListByWorkflow(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        runs,
		"total_count": len(runs),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.persistence.Runs().GetByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(run)
}

// HandleWebhook dispatches an inbound webhook request to every active
// workflow registered on the path.
func (h *APIHandlers) HandleWebhook(c fiber.Ctx) error {
	path := "/" + c.Params("*")

	var body map[string]any
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "Invalid JSON body")
		}
	}

	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	results, err := h.dispatcher.Handle(c.Context(), dispatcher.Request{
		Path:    path,
		Method:  c.Method(),
		Headers: headers,
		Query:   c.Queries(),
		Body:    body,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":   "Webhook received",
		"workflows": results,
		"received":  body,
	})
}

// TickScheduler evaluates schedule-triggered workflows against the current
// minute. Exposed so an external clock can drive the scheduler.
func (h *APIHandlers) TickScheduler(c fiber.Ctx) error {
	results, err := h.scheduler.Tick(c.Context(), time.Now().UTC())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":  "Scheduler tick completed",
		"executed": len(results),
		"results":  results,
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	types := h.registry.Types()

	schemas := make(map[string]any, len(types))
	for _, nodeType := range types {
		if schema, ok := h.registry.Schema(nodeType); ok {
			schemas[nodeType] = schema
		}
	}

	return c.JSON(fiber.Map{
		"types":   types,
		"schemas": schemas,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()

	repOk := true
	repositoryCheck := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		repOk = false
		repositoryCheck = err.Error()
	}

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
