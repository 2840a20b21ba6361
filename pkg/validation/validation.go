// Package validation checks workflow definitions before they are saved,
// so the scheduler and dispatcher never see a malformed document.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/scheduler"
)

// workflowSchema is the structural contract for a workflow document.
var workflowSchema = map[string]any{
	"type":     "object",
	"required": []any{"name", "trigger", "nodes"},
	"properties": map[string]any{
		"name": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
		"status": map[string]any{
			"type": "string",
			"enum": []any{"draft", "active", "paused"},
		},
		"trigger": map[string]any{
			"type":     "object",
			"required": []any{"kind"},
			"properties": map[string]any{
				"kind": map[string]any{
					"type": "string",
					"enum": []any{"manual", "schedule", "webhook"},
				},
				"cron": map[string]any{"type": "string"},
				"path": map[string]any{"type": "string"},
			},
		},
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "type"},
				"properties": map[string]any{
					"id":     map[string]any{"type": "string", "minLength": 1},
					"type":   map[string]any{"type": "string", "minLength": 1},
					"title":  map[string]any{"type": "string"},
					"config": map[string]any{"type": []any{"object", "null"}},
				},
			},
		},
	},
}

// ValidateDocument validates a raw workflow document against the schema.
func ValidateDocument(document map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(workflowSchema)
	dataLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid workflow document: %s", strings.Join(descriptions, "; "))
	}

	return nil
}

// ValidateWorkflow enforces the semantic rules the schema cannot express:
// trigger fields required by the kind, and node id uniqueness.
func ValidateWorkflow(workflow *models.Workflow) error {
	if workflow.Name == "" {
		return fmt.Errorf("workflow name is required")
	}

	switch workflow.Trigger.Kind {
	case models.TriggerKindManual:
	case models.TriggerKindSchedule:
		if workflow.Trigger.Cron == "" {
			return fmt.Errorf("schedule trigger requires a cron expression")
		}

		err := scheduler.Validate(workflow.Trigger.Cron)
		if err != nil {
			return err
		}
	case models.TriggerKindWebhook:
		if workflow.Trigger.Path == "" {
			return fmt.Errorf("webhook trigger requires a path")
		}
	default:
		return fmt.Errorf("unknown trigger kind %q", workflow.Trigger.Kind)
	}

	seen := make(map[string]bool, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if node.ID == "" {
			return fmt.Errorf("every node requires an id")
		}

		if node.Type == "" {
			return fmt.Errorf("node %s requires a type", node.ID)
		}

		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}

		seen[node.ID] = true
	}

	return nil
}
