// Package email implements the email-send node executor.
package email

import (
	"context"
	"log/slog"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/protocol"
	"github.com/flowlet-io/flowlet/pkg/template"
)

// Executor sends an email through the external transport collaborator. The
// body defaults to the first AI node's generated text; a templated "body"
// config field overrides that convention.
type Executor struct {
	To      string
	Subject string
	Body    string

	nodeOrder []string
	sender    protocol.EmailSender
}

func NewExecutor(config map[string]any, sender protocol.EmailSender) *Executor {
	to, _ := config["to"].(string)
	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	var nodeOrder []string
	if order, ok := config["node_order"].([]string); ok {
		nodeOrder = order
	}

	return &Executor{
		To:        to,
		Subject:   subject,
		Body:      body,
		nodeOrder: nodeOrder,
		sender:    sender,
	}
}

func (e *Executor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("executor", "email", "to", e.To)

	missing := make([]string, 0, 2)
	if e.To == "" {
		missing = append(missing, "to")
	}

	if e.Subject == "" {
		missing = append(missing, "subject")
	}

	if len(missing) > 0 {
		return nil, protocol.NewValidationError(missing...)
	}

	body := e.Body
	if body != "" {
		rendered, err := template.RenderString(body, executionCtx)
		if err != nil {
			logger.Warn("Failed to render body template, sending raw body", "error", err)
		} else {
			body = rendered
		}
	}

	if body == "" {
		body = executionCtx.FirstTextOutput(e.nodeOrder)
	}

	// A failed upstream AI node leaves no text; the email still goes out
	// with a degraded payload rather than aborting the run.
	if body == "" {
		body = "(no content generated)"
	}

	subject, err := template.RenderString(e.Subject, executionCtx)
	if err != nil {
		subject = e.Subject
	}

	logger.Info("Sending email")

	err = e.sender.Send(ctx, protocol.EmailMessage{
		To:      e.To,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, protocol.NewTimeoutError("email send timed out")
		}

		return nil, protocol.NewUpstreamError("email send failed", err)
	}

	logger.Info("Email sent")

	return map[string]any{
		"to":      e.To,
		"subject": subject,
		"success": true,
	}, nil
}
