// Package memory provides an in-memory persistence implementation, used in
// tests and as the zero-dependency development backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/persistence"
)

// Persistence implements persistence.Persistence backed by maps. All reads
// return deep copies so callers hold snapshots, matching the contract the
// file and PostgreSQL backends get for free from decoding.
type Persistence struct {
	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflowRepo: &WorkflowRepository{workflows: make(map[string]*models.Workflow)},
		runRepo:      &RunRepository{runs: make(map[string]*models.Run)},
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) Runs() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// WorkflowRepository stores workflow definitions in a mutex-guarded map.
type WorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return workflow.Clone(), nil
}

func (r *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.workflows))
	for _, workflow := range r.workflows {
		workflows = append(workflows, workflow.Clone())
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) ListActiveByTriggerKind(_ context.Context, kind models.TriggerKind) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*models.Workflow, 0)

	for _, workflow := range r.workflows {
		if workflow.IsTriggerable() && workflow.Trigger.Kind == kind {
			matches = append(matches, workflow.Clone())
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	return matches, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	r.workflows[workflow.ID] = workflow.Clone()

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[id]; !ok {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.workflows, id)

	return nil
}

// RunRepository stores run records in a mutex-guarded map and enforces the
// terminal-state immutability invariant.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
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

	r.runs[run.ID] = run

	return cloneRun(run), nil
}

func (r *RunRepository) Finalize(_ context.Context, runID string, result models.RunResult) (*models.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, persistence.NewRunError("Finalize", runID, persistence.ErrRunNotFound)
	}

	if run.Status.IsTerminal() {
		return nil, persistence.NewRunError("Finalize", runID, persistence.ErrRunFinalized)
	}

	now := time.Now().UTC()
	run.Status = result.Status
	run.Output = result.Output
	run.Error = result.Error
	run.FinishedAt = &now

	return cloneRun(run), nil
}

func (r *RunRepository) AppendStep(_ context.Context, runID string, step *models.RunStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return persistence.NewRunError("AppendStep", runID, persistence.ErrRunNotFound)
	}

	if run.Status.IsTerminal() {
		return persistence.NewRunError("AppendStep", runID, persistence.ErrRunFinalized)
	}

	stepCopy := *step
	run.Steps = append(run.Steps, &stepCopy)

	return nil
}

func (r *RunRepository) UpdateStep(_ context.Context, runID string, step *models.RunStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return persistence.NewRunError("UpdateStep", runID, persistence.ErrRunNotFound)
	}

	for i, existing := range run.Steps {
		if existing.ID == step.ID {
			stepCopy := *step
			run.Steps[i] = &stepCopy

			return nil
		}
	}

	return persistence.NewRunError("UpdateStep", runID, persistence.ErrStepNotFound)
}

func (r *RunRepository) GetByID(_ context.Context, runID string) (*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, persistence.NewRunError("GetByID", runID, persistence.ErrRunNotFound)
	}

	return cloneRun(run), nil
}

func (r *RunRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*models.Run, 0)

	for _, run := range r.runs {
		if run.WorkflowID == workflowID {
			runs = append(runs, cloneRun(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})

	return runs, nil
}

func (r *RunRepository) ListStaleRunning(_ context.Context, startedBefore time.Time) ([]*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stale := make([]*models.Run, 0)

	for _, run := range r.runs {
		if run.Status == models.RunStatusRunning && run.StartedAt.Before(startedBefore) {
			stale = append(stale, cloneRun(run))
		}
	}

	return stale, nil
}

func cloneRun(run *models.Run) *models.Run {
	clone := *run

	clone.Steps = make([]*models.RunStep, len(run.Steps))
	for i, step := range run.Steps {
		stepCopy := *step
		clone.Steps[i] = &stepCopy
	}

	return &clone
}
