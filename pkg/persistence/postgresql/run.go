package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
)

// RunRepository is the PostgreSQL run ledger. Finalize uses a conditional
// UPDATE so a terminal run can never be overwritten, even by a racing
// writer.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

func (r *RunRepository) CreateRunning(ctx context.Context, workflowID string, input map[string]any) (*models.Run, error) {
	run := &models.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     models.RunStatusRunning,
		Input:      input,
		StartedAt:  time.Now().UTC(),
		Steps:      make([]*models.RunStep, 0),
	}

	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return nil, persistence.NewRunError("CreateRunning", run.ID, fmt.Errorf("failed to marshal input: %w", err))
	}

	query := `
		INSERT INTO runs (id, workflow_id, status, input, error, started_at)
		VALUES ($1, $2, $3, $4, '', $5)
	`

	_, err = r.db.ExecContext(ctx, query, run.ID, run.WorkflowID, string(run.Status), inputJSON, run.StartedAt)
	if err != nil {
		return nil, persistence.NewRunError("CreateRunning", run.ID, err)
	}

	return run, nil
}

func (r *RunRepository) Finalize(ctx context.Context, runID string, result models.RunResult) (*models.Run, error) {
	outputJSON, err := json.Marshal(result.Output)
	if err != nil {
		return nil, persistence.NewRunError("Finalize", runID, fmt.Errorf("failed to marshal output: %w", err))
	}

	query := `
		UPDATE runs
		SET status = $2, output = $3, error = $4, finished_at = $5
		WHERE id = $1 AND status = $6
	`

	res, err := r.db.ExecContext(ctx, query,
		runID,
		string(result.Status),
		outputJSON,
		result.Error,
		time.Now().UTC(),
		string(models.RunStatusRunning),
	)
	if err != nil {
		return nil, persistence.NewRunError("Finalize", runID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, persistence.NewRunError("Finalize", runID, err)
	}

	if affected == 0 {
		// Either the run does not exist or it is already terminal.
		existing, getErr := r.GetByID(ctx, runID)
		if getErr != nil {
			return nil, getErr
		}

		if existing.Status.IsTerminal() {
			return nil, persistence.NewRunError("Finalize", runID, persistence.ErrRunFinalized)
		}

		return nil, persistence.NewRunError("Finalize", runID, persistence.ErrRunNotFound)
	}

	return r.GetByID(ctx, runID)
}

func (r *RunRepository) AppendStep(ctx context.Context, runID string, step *models.RunStep) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}

	step.RunID = runID

	query := `
		INSERT INTO run_steps (id, run_id, node_id, name, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		step.ID,
		step.RunID,
		step.NodeID,
		step.Name,
		string(step.Status),
		step.Error,
		step.StartedAt,
		step.FinishedAt,
	)
	if err != nil {
		return persistence.NewRunError("AppendStep", runID, err)
	}

	return nil
}

func (r *RunRepository) UpdateStep(ctx context.Context, runID string, step *models.RunStep) error {
	query := `
		UPDATE run_steps
		SET status = $3, error = $4, finished_at = $5
		WHERE id = $1 AND run_id = $2
	`

	res, err := r.db.ExecContext(ctx, query,
		step.ID,
		runID,
		string(step.Status),
		step.Error,
		step.FinishedAt,
	)
	if err != nil {
		return persistence.NewRunError("UpdateStep", runID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return persistence.NewRunError("UpdateStep", runID, err)
	}

	if affected == 0 {
		return persistence.NewRunError("UpdateStep", runID, persistence.ErrStepNotFound)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, runID string) (*models.Run, error) {
	query := `
		SELECT id, workflow_id, status, input, output, error, started_at, finished_at
		FROM runs
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", runID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", runID, err)
	}

	steps, err := r.stepsByRun(ctx, runID)
	if err != nil {
		return nil, persistence.NewRunError("GetByID", runID, err)
	}

	run.Steps = steps

	return run, nil
}

func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Run, error) {
	query := `
		SELECT id, workflow_id, status, input, output, error, started_at, finished_at
		FROM runs
		WHERE workflow_id = $1
		ORDER BY started_at
	`

	return r.queryRuns(ctx, query, workflowID)
}

func (r *RunRepository) ListStaleRunning(ctx context.Context, startedBefore time.Time) ([]*models.Run, error) {
	query := `
		SELECT id, workflow_id, status, input, output, error, started_at, finished_at
		FROM runs
		WHERE status = $1 AND started_at < $2
		ORDER BY started_at
	`

	return r.queryRuns(ctx, query, string(models.RunStatusRunning), startedBefore)
}

func (r *RunRepository) queryRuns(ctx context.Context, query string, args ...any) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (r *RunRepository) stepsByRun(ctx context.Context, runID string) ([]*models.RunStep, error) {
	query := `
		SELECT id, run_id, node_id, name, status, error, started_at, finished_at
		FROM run_steps
		WHERE run_id = $1
		ORDER BY started_at
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.RunStep, 0)

	for rows.Next() {
		var (
			step   models.RunStep
			status string
		)

		err := rows.Scan(
			&step.ID,
			&step.RunID,
			&step.NodeID,
			&step.Name,
			&status,
			&step.Error,
			&step.StartedAt,
			&step.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}

		step.Status = models.RunStepStatus(status)
		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating run steps: %w", err)
	}

	return steps, nil
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run        models.Run
		status     string
		inputJSON  []byte
		outputJSON []byte
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&status,
		&inputJSON,
		&outputJSON,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)

	if len(inputJSON) > 0 {
		err = json.Unmarshal(inputJSON, &run.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if len(outputJSON) > 0 {
		err = json.Unmarshal(outputJSON, &run.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	return &run, nil
}
