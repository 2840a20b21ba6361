// Package registry maps node types to their executor factories.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/flowlet-io/flowlet/pkg/protocol"
)

// Registry holds the executor factories known at startup. Unknown node
// types resolve to a NoOp executor, so a workflow carrying an
// unrecognized node still runs, with that node contributing nothing.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.ExecutorFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.ExecutorFactory),
	}
}

// Register adds an executor factory under its node type.
func (r *Registry) Register(factory protocol.ExecutorFactory) {
	r.factories[factory.ID()] = factory
}

// Create builds an executor for the node type, falling back to NoOp for
// unregistered types.
func (r *Registry) Create(nodeType string, config map[string]any) (protocol.Executor, error) {
	factory, ok := r.factories[nodeType]
	if !ok {
		r.logger.Warn("Unknown node type, using no-op executor", "node_type", nodeType)

		return NoOpExecutor{}, nil
	}

	executor, err := factory.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor for node type %q: %w", nodeType, err)
	}

	return executor, nil
}

// Types returns the registered node types.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	return types
}

// Schema returns the config schema for a node type, if registered.
func (r *Registry) Schema(nodeType string) (map[string]any, bool) {
	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, false
	}

	return factory.Schema(), true
}

// HealthCheck reports the registry state for the health endpoint.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "no executors registered", false
	}

	return fmt.Sprintf("%d executors registered", len(r.factories)), true
}
