// Package persistence provides the storage abstraction for workflow
// definitions and the run log.
package persistence

import (
	"context"
	"time"

	"github.com/flowlet-io/flowlet/pkg/models"
)

// Persistence bundles the repositories of one backing store.
type Persistence interface {
	Workflows() WorkflowRepository
	Runs() RunRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository reads and writes workflow definitions. GetByID must
// return a snapshot: mutating the stored definition after a read never
// affects previously returned values.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	ListActiveByTriggerKind(ctx context.Context, kind models.TriggerKind) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// RunRepository is the append-only run ledger. Finalize is the only way a
// run reaches a terminal state, and it refuses to touch a run that is
// already terminal.
type RunRepository interface {
	CreateRunning(ctx context.Context, workflowID string, input map[string]any) (*models.Run, error)
	Finalize(ctx context.Context, runID string, result models.RunResult) (*models.Run, error)
	AppendStep(ctx context.Context, runID string, step *models.RunStep) error
	UpdateStep(ctx context.Context, runID string, step *models.RunStep) error
	GetByID(ctx context.Context, runID string) (*models.Run, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Run, error)
	ListStaleRunning(ctx context.Context, startedBefore time.Time) ([]*models.Run, error)
}
