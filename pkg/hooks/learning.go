// Package hooks contains fire-and-forget side effects invoked after a run
// finishes. Hook failures are logged and swallowed; they never fail a run.
package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlet-io/flowlet/pkg/eventbus"
	"github.com/flowlet-io/flowlet/pkg/events"
)

// LearningHook publishes the final outcome of each run on the event bus so
// the analytics/learning pipeline can consume it out of band.
type LearningHook struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewLearningHook(publisher eventbus.EventPublisher, logger *slog.Logger) *LearningHook {
	return &LearningHook{
		publisher: publisher,
		logger:    logger.With("module", "learning_hook"),
	}
}

// RunFinished publishes a RunCompleted event. Errors are logged, never
// propagated.
func (h *LearningHook) RunFinished(ctx context.Context, workflowID string, input, output map[string]any) {
	event := events.RunCompleted{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.RunCompletedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: workflowID,
		},
		Input:  input,
		Output: output,
	}

	err := h.publisher.Publish(ctx, workflowID, event)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to publish run outcome", "workflow_id", workflowID, "error", err)
	}
}
