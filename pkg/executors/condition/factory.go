package condition

import (
	"github.com/flowlet-io/flowlet/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "condition"
}

func (f *Factory) Create(config map[string]any) (protocol.Executor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewExecutor(config), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Templated predicate evaluated against trigger data and prior node outputs. Must render to a boolean.",
			},
			"skip_nodes": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Node ids skipped when the predicate is false",
			},
		},
	}
}
