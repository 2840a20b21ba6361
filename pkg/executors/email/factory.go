package email

import (
	"github.com/flowlet-io/flowlet/pkg/protocol"
)

// Factory creates email executors bound to the configured transport.
type Factory struct {
	sender protocol.EmailSender
}

func NewFactory(sender protocol.EmailSender) *Factory {
	return &Factory{sender: sender}
}

func (*Factory) ID() string {
	return "email"
}

func (f *Factory) Create(config map[string]any) (protocol.Executor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewExecutor(config, f.sender), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient address",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Email subject. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Email body. Defaults to the first AI node's generated text when omitted.",
			},
		},
		"required": []string{"to", "subject"},
	}
}
