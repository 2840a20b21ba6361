package connector

import (
	"net/http"

	"github.com/flowlet-io/flowlet/pkg/protocol"
)

// Factory creates a connector executor for one provider's action map.
type Factory struct {
	provider string
	actions  map[string]Action
}

func NewFactory(provider string, actions map[string]Action) *Factory {
	return &Factory{provider: provider, actions: actions}
}

func (f *Factory) ID() string {
	return f.provider
}

func (f *Factory) Create(config map[string]any) (protocol.Executor, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewExecutor(f.provider, config, f.actions), nil
}

func (f *Factory) Schema() map[string]any {
	actionNames := make([]string, 0, len(f.actions))
	for name := range f.actions {
		actionNames = append(actionNames, name)
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "Connector action to invoke",
				"enum":        actionNames,
			},
			"config": map[string]any{
				"type":        "object",
				"description": "Action-specific fields",
			},
			"credentials": map[string]any{
				"type":        "object",
				"description": "Provider credentials",
			},
		},
		"required": []string{"action"},
	}
}

// NewSlackFactory returns the Slack connector with its supported actions.
func NewSlackFactory() *Factory {
	return NewFactory("slack", map[string]Action{
		"send_message": {
			Method:   http.MethodPost,
			URL:      "https://slack.com/api/chat.postMessage",
			Required: []string{"channel", "text"},
			BuildBody: func(config map[string]any) map[string]any {
				return map[string]any{
					"channel": config["channel"],
					"text":    config["text"],
				}
			},
		},
	})
}

// NewHubSpotFactory returns the HubSpot connector with its supported
// actions.
func NewHubSpotFactory() *Factory {
	return NewFactory("hubspot", map[string]Action{
		"create_contact": {
			Method:   http.MethodPost,
			URL:      "https://api.hubapi.com/crm/v3/objects/contacts",
			Required: []string{"email"},
			BuildBody: func(config map[string]any) map[string]any {
				return map[string]any{
					"properties": map[string]any{
						"email":     config["email"],
						"firstname": config["firstname"],
						"lastname":  config["lastname"],
					},
				}
			},
		},
		"create_deal": {
			Method:   http.MethodPost,
			URL:      "https://api.hubapi.com/crm/v3/objects/deals",
			Required: []string{"dealname"},
			BuildBody: func(config map[string]any) map[string]any {
				return map[string]any{
					"properties": map[string]any{
						"dealname": config["dealname"],
						"amount":   config["amount"],
					},
				}
			},
		},
	})
}
