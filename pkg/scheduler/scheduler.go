// Package scheduler fires schedule-triggered workflows whose cron
// expression matches the current minute.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
)

// Runner starts a workflow run. Satisfied by *engine.Engine.
type Runner interface {
	Run(ctx context.Context, workflowID string, triggerPayload map[string]any) (*models.Run, error)
}

// TickResult reports what one tick did for one matching workflow.
type TickResult struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Scheduler scans active schedule-triggered workflows on every tick. One
// workflow's failure never blocks the others.
type Scheduler struct {
	persistence persistence.Persistence
	runner      Runner
	logger      *slog.Logger
}

func NewScheduler(logger *slog.Logger, p persistence.Persistence, runner Runner) *Scheduler {
	return &Scheduler{
		persistence: p,
		runner:      runner,
		logger:      logger.With("module", "scheduler"),
	}
}

// Tick evaluates every active schedule-triggered workflow against now and
// runs the ones whose cron expression matches. Runs execute synchronously
// and sequentially within the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]TickResult, error) {
	workflows, err := s.persistence.Workflows().ListActiveByTriggerKind(ctx, models.TriggerKindSchedule)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled workflows: %w", err)
	}

	results := make([]TickResult, 0)

	for _, workflow := range workflows {
		matches, err := Matches(workflow.Trigger.Cron, now)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping workflow with invalid cron expression",
				"workflow_id", workflow.ID, "cron", workflow.Trigger.Cron, "error", err)

			results = append(results, TickResult{WorkflowID: workflow.ID, Error: err.Error()})

			continue
		}

		if !matches {
			continue
		}

		s.logger.InfoContext(ctx, "Cron matched, starting run", "workflow_id", workflow.ID, "cron", workflow.Trigger.Cron)

		run, err := s.runner.Run(ctx, workflow.ID, map[string]any{
			"trigger":      "schedule",
			"triggered_at": now.UTC().Format(time.RFC3339),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Scheduled run failed", "workflow_id", workflow.ID, "error", err)

			results = append(results, TickResult{WorkflowID: workflow.ID, Error: err.Error()})

			continue
		}

		results = append(results, TickResult{WorkflowID: workflow.ID, RunID: run.ID})
	}

	return results, nil
}
