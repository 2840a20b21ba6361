// Package delay implements the delay/wait node executor.
package delay

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/protocol"
)

// Executor pauses the run for the configured duration. The wait honors the
// node's context so a timeout or shutdown is not blocked on the timer.
type Executor struct {
	Duration time.Duration
}

func NewExecutor(config map[string]any) *Executor {
	var duration time.Duration

	if seconds, ok := config["seconds"].(float64); ok && seconds > 0 {
		duration = time.Duration(seconds * float64(time.Second))
	}

	return &Executor{Duration: duration}
}

func (e *Executor) Execute(ctx context.Context, _ *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("executor", "delay", "duration", e.Duration)

	if e.Duration <= 0 {
		return nil, protocol.NewValidationError("seconds")
	}

	logger.Info("Delaying")

	timer := time.NewTimer(e.Duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, protocol.NewTimeoutError("delay interrupted")
	}

	return map[string]any{"waited_seconds": e.Duration.Seconds()}, nil
}
