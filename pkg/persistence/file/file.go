// Package file provides file-based persistence, storing workflow
// definitions and run records as JSON documents on disk.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/flowlet-io/flowlet/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system. Workflows live under <root>/workflows, runs under
// <root>/runs, one JSON document each.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
}

// NewPersistence creates a new instance rooted at the given directory. A
// "file://" prefix is stripped so database URLs can be passed directly.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: NewWorkflowRepository(cleanRoot),
		runRepo:      NewRunRepository(cleanRoot),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) Runs() persistence.RunRepository {
	return p.runRepo
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there
// is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
