package queue

import (
	redis "github.com/redis/go-redis/v9"

	"github.com/flowlet-io/flowlet/pkg/protocol"
)

// Factory creates queue executors sharing one Redis client.
type Factory struct {
	client redis.UniversalClient
}

func NewFactory(client redis.UniversalClient) *Factory {
	return &Factory{client: client}
}

func (*Factory) ID() string {
	return "queue"
}

func (f *Factory) Create(config map[string]any) (protocol.Executor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewExecutor(config, f.client), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stream": map[string]any{
				"type":        "string",
				"description": "Redis stream to publish to",
			},
			"payload": map[string]any{
				"type":        "string",
				"description": "Message payload. Supports templating; defaults to the accumulated node outputs.",
			},
		},
		"required": []string{"stream"},
	}
}
