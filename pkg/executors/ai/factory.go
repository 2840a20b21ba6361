package ai

import (
	"github.com/flowlet-io/flowlet/pkg/protocol"
)

// Factory creates ai executors bound to the configured text-generation
// collaborator.
type Factory struct {
	generator protocol.TextGenerator
}

func NewFactory(generator protocol.TextGenerator) *Factory {
	return &Factory{generator: generator}
}

func (*Factory) ID() string {
	return "ai"
}

func (f *Factory) Create(config map[string]any) (protocol.Executor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewExecutor(config, f.generator), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt for the text-generation model. Supports templating against trigger data and prior node outputs.",
			},
			"model": map[string]any{
				"type":        "string",
				"description": "Model identifier passed to the provider",
				"default":     defaultModel,
			},
			"temperature": map[string]any{
				"type":        "number",
				"description": "Sampling temperature",
				"default":     0.7,
			},
		},
		"required": []string{"prompt"},
	}
}
