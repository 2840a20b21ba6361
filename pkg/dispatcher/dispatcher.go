// Package dispatcher routes inbound webhook requests to the workflows
// registered on the request path.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
	"github.com/flowlet-io/flowlet/pkg/scheduler"
)

// ErrNoWebhookRegistered is returned when no active workflow listens on
// the requested path.
var ErrNoWebhookRegistered = fmt.Errorf("no webhook registered for path")

// Request carries the inbound HTTP request parts handed to each matching
// workflow as its trigger payload.
type Request struct {
	Path    string
	Method  string
	Headers map[string]string
	Query   map[string]string
	Body    map[string]any
}

// Result reports the outcome of one workflow triggered by a webhook.
type Result struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Dispatcher resolves webhook paths against active webhook-triggered
// workflows. Multiple workflows may share a path; each runs independently.
type Dispatcher struct {
	persistence persistence.Persistence
	runner      scheduler.Runner
	logger      *slog.Logger
}

func NewDispatcher(logger *slog.Logger, p persistence.Persistence, runner scheduler.Runner) *Dispatcher {
	return &Dispatcher{
		persistence: p,
		runner:      runner,
		logger:      logger.With("module", "dispatcher"),
	}
}

// Handle runs every active workflow registered on the request path. It
// returns ErrNoWebhookRegistered when the path resolves to nothing; a
// failing workflow is reported in its Result without blocking the others.
func (d *Dispatcher) Handle(ctx context.Context, req Request) ([]Result, error) {
	path := normalizePath(req.Path)

	workflows, err := d.persistence.Workflows().ListActiveByTriggerKind(ctx, models.TriggerKindWebhook)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook workflows: %w", err)
	}

	matched := make([]*models.Workflow, 0)

	for _, workflow := range workflows {
		if normalizePath(workflow.Trigger.Path) == path {
			matched = append(matched, workflow)
		}
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoWebhookRegistered, path)
	}

	payload := map[string]any{
		"trigger": "webhook",
		"path":    path,
		"method":  req.Method,
		"headers": req.Headers,
		"query":   req.Query,
		"body":    req.Body,
	}

	results := make([]Result, 0, len(matched))

	for _, workflow := range matched {
		d.logger.InfoContext(ctx, "Webhook matched, starting run", "workflow_id", workflow.ID, "path", path)

		run, err := d.runner.Run(ctx, workflow.ID, payload)
		if err != nil {
			d.logger.ErrorContext(ctx, "Webhook run failed", "workflow_id", workflow.ID, "error", err)

			results = append(results, Result{WorkflowID: workflow.ID, Error: err.Error()})

			continue
		}

		results = append(results, Result{WorkflowID: workflow.ID, RunID: run.ID})
	}

	return results, nil
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimSuffix(path, "/")

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return path
}
