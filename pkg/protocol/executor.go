// Package protocol defines the contracts between the execution engine and
// pluggable node executors.
package protocol

import (
	"context"
	"log/slog"

	"github.com/flowlet-io/flowlet/pkg/models"
)

// SkipNodesKey is the well-known output field a branching executor sets to
// tell the engine which downstream node ids to skip.
const SkipNodesKey = "skip_nodes"

// Executor runs one node kind. Implementations are narrow and
// side-effecting; the engine only knows this contract.
type Executor interface {
	Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) (any, error)
}

// ExecutorFactory creates executor instances for a node type from its
// config map.
type ExecutorFactory interface {
	// ID returns the node type this factory handles.
	ID() string

	// Create builds an executor bound to the given node config.
	Create(config map[string]any) (Executor, error)

	// Schema returns the JSON schema for this node type's config.
	Schema() map[string]any
}
