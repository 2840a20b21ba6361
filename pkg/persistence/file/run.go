package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
)

// RunRepository is the file-backed run ledger. The mutex serializes writes
// to a run document; the engine already guarantees a single writer per run.
type RunRepository struct {
	root string
	mu   sync.Mutex
}

func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (r *RunRepository) dir() string {
	return filepath.Join(r.root, "runs")
}

func (r *RunRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *RunRepository) CreateRunning(_ context.Context, workflowID string, input map[string]any) (*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := &models.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     models.RunStatusRunning,
		Input:      input,
		StartedAt:  time.Now().UTC(),
		Steps:      make([]*models.RunStep, 0),
	}

	err := r.write(run)
	if err != nil {
		return nil, persistence.NewRunError("CreateRunning", run.ID, err)
	}

	return run, nil
}

func (r *RunRepository) Finalize(ctx context.Context, runID string, result models.RunResult) (*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.read(runID)
	if err != nil {
		return nil, persistence.NewRunError("Finalize", runID, err)
	}

	if run.Status.IsTerminal() {
		return nil, persistence.NewRunError("Finalize", runID, persistence.ErrRunFinalized)
	}

	now := time.Now().UTC()
	run.Status = result.Status
	run.Output = result.Output
	run.Error = result.Error
	run.FinishedAt = &now

	err = r.write(run)
	if err != nil {
		return nil, persistence.NewRunError("Finalize", runID, err)
	}

	return run, nil
}

func (r *RunRepository) AppendStep(_ context.Context, runID string, step *models.RunStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.read(runID)
	if err != nil {
		return persistence.NewRunError("AppendStep", runID, err)
	}

	if run.Status.IsTerminal() {
		return persistence.NewRunError("AppendStep", runID, persistence.ErrRunFinalized)
	}

	run.Steps = append(run.Steps, step)

	err = r.write(run)
	if err != nil {
		return persistence.NewRunError("AppendStep", runID, err)
	}

	return nil
}

func (r *RunRepository) UpdateStep(_ context.Context, runID string, step *models.RunStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.read(runID)
	if err != nil {
		return persistence.NewRunError("UpdateStep", runID, err)
	}

	for i, existing := range run.Steps {
		if existing.ID == step.ID {
			run.Steps[i] = step

			err = r.write(run)
			if err != nil {
				return persistence.NewRunError("UpdateStep", runID, err)
			}

			return nil
		}
	}

	return persistence.NewRunError("UpdateStep", runID, persistence.ErrStepNotFound)
}

func (r *RunRepository) GetByID(_ context.Context, runID string) (*models.Run, error) {
	run, err := r.read(runID)
	if err != nil {
		return nil, persistence.NewRunError("GetByID", runID, err)
	}

	return run, nil
}

func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Run, error) {
	all, err := r.getAll(ctx)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.Run, 0)

	for _, run := range all {
		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}

	return runs, nil
}

func (r *RunRepository) ListStaleRunning(ctx context.Context, startedBefore time.Time) ([]*models.Run, error) {
	all, err := r.getAll(ctx)
	if err != nil {
		return nil, err
	}

	stale := make([]*models.Run, 0)

	for _, run := range all {
		if run.Status == models.RunStatusRunning && run.StartedAt.Before(startedBefore) {
			stale = append(stale, run)
		}
	}

	return stale, nil
}

func (r *RunRepository) getAll(_ context.Context) ([]*models.Run, error) {
	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.Run, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		runID := file[:len(file)-len(".json")]

		run, err := r.read(runID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
		}

		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})

	return runs, nil
}

func (r *RunRepository) read(runID string) (*models.Run, error) {
	data, err := os.ReadFile(r.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, err
	}

	var run models.Run

	err = json.Unmarshal(data, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to decode run file: %w", err)
	}

	return &run, nil
}

func (r *RunRepository) write(run *models.Run) error {
	err := os.MkdirAll(r.dir(), 0o755)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(r.path(run.ID), data, 0o644)
}
