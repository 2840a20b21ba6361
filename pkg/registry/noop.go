package registry

import (
	"context"
	"log/slog"

	"github.com/flowlet-io/flowlet/pkg/models"
)

// NoOpExecutor is the pass-through fallback for unknown node types. It
// produces no output and never fails.
type NoOpExecutor struct{}

func (NoOpExecutor) Execute(_ context.Context, _ *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger.Debug("No-op executor invoked")

	return nil, nil
}
