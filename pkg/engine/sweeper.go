package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
)

const defaultStaleAfter = time.Hour

// Sweeper reconciles runs left in the running state by a crashed process:
// any run older than the cutoff is finalized as failed.
type Sweeper struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	staleAfter  time.Duration
}

func NewSweeper(logger *slog.Logger, p persistence.Persistence, staleAfter time.Duration) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	return &Sweeper{
		persistence: p,
		logger:      logger.With("module", "sweeper"),
		staleAfter:  staleAfter,
	}
}

// Sweep finalizes every stale running run and returns how many were
// reconciled. Failures on individual runs are logged and do not stop the
// sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.staleAfter)

	stale, err := s.persistence.Runs().ListStaleRunning(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale runs: %w", err)
	}

	swept := 0

	for _, run := range stale {
		_, err := s.persistence.Runs().Finalize(ctx, run.ID, models.RunResult{
			Status: models.RunStatusFailed,
			Error:  fmt.Sprintf("run exceeded maximum duration of %s", s.staleAfter),
		})
		if err != nil {
			if persistence.IsRunFinalized(err) {
				continue
			}

			s.logger.ErrorContext(ctx, "Failed to sweep stale run", "run_id", run.ID, "error", err)

			continue
		}

		s.logger.WarnContext(ctx, "Stale run marked failed", "run_id", run.ID, "started_at", run.StartedAt)
		swept++
	}

	return swept, nil
}
