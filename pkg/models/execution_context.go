package models

// ExecutionContext is the run-scoped accumulator handed to every node
// executor. It is owned exclusively by the run that created it and is
// never shared between concurrent runs.
type ExecutionContext struct {
	RunID       string         `json:"run_id"`
	WorkflowID  string         `json:"workflow_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	NodeOutputs map[string]any `json:"node_outputs,omitempty"`
}

// NewExecutionContext seeds a context with the trigger payload and an empty
// output map.
func NewExecutionContext(runID, workflowID string, triggerData map[string]any) *ExecutionContext {
	return &ExecutionContext{
		RunID:       runID,
		WorkflowID:  workflowID,
		TriggerData: triggerData,
		NodeOutputs: make(map[string]any),
	}
}

// RecordOutput stores a node's output under its node id so later nodes can
// read it.
func (c *ExecutionContext) RecordOutput(nodeID string, output any) {
	if c.NodeOutputs == nil {
		c.NodeOutputs = make(map[string]any)
	}

	c.NodeOutputs[nodeID] = output
}

// Output returns the recorded output of a prior node, if any.
func (c *ExecutionContext) Output(nodeID string) (any, bool) {
	output, ok := c.NodeOutputs[nodeID]

	return output, ok
}

// FirstTextOutput returns the first non-empty "text" field among prior node
// outputs, walking the given node order. The email executor uses this as
// the default body convention.
func (c *ExecutionContext) FirstTextOutput(order []string) string {
	for _, nodeID := range order {
		output, ok := c.NodeOutputs[nodeID]
		if !ok {
			continue
		}

		if m, ok := output.(map[string]any); ok {
			if text, ok := m["text"].(string); ok && text != "" {
				return text
			}
		}
	}

	return ""
}
