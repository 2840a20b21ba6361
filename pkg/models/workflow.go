// Package models defines the core domain models for workflow automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"  // Editable, never triggered
	WorkflowStatusActive WorkflowStatus = "active" // Eligible for schedule/webhook triggers
	WorkflowStatusPaused WorkflowStatus = "paused" // Kept, but triggers are ignored
)

// TriggerKind identifies the event source that starts a run.
type TriggerKind string

const (
	TriggerKindManual   TriggerKind = "manual"
	TriggerKindSchedule TriggerKind = "schedule"
	TriggerKindWebhook  TriggerKind = "webhook"
)

// Trigger is the tagged trigger variant of a workflow. Cron is set for
// schedule triggers, Path for webhook triggers.
type Trigger struct {
	Kind TriggerKind `json:"kind" validate:"required,oneof=manual schedule webhook"`
	Cron string      `json:"cron,omitempty"`
	Path string      `json:"path,omitempty"`
}

// Node is one step in a workflow. Type selects the executor, Config is
// interpreted by that executor.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Type   string         `json:"type"   validate:"required"`
	Title  string         `json:"title"`
	Config map[string]any `json:"config"`
}

// Workflow is a stored automation definition: one trigger plus an ordered
// list of nodes. Node order is the execution order.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"      validate:"required"`
	Trigger     Trigger        `json:"trigger"`
	Nodes       []*Node        `json:"nodes"`
	Connections []*Connection  `json:"connections,omitempty"`
	ProjectID   string         `json:"project_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Connection links two nodes in the builder UI. The engine executes nodes
// in declared order; connections are carried for the definition document
// only.
type Connection struct {
	ID     string `json:"id"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// Clone returns a deep copy of the workflow. Repositories return clones so
// an in-flight run operates on a snapshot that later updates cannot touch.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := *w

	clone.Nodes = make([]*Node, len(w.Nodes))
	for i, node := range w.Nodes {
		nodeCopy := *node
		nodeCopy.Config = cloneMap(node.Config)
		clone.Nodes[i] = &nodeCopy
	}

	clone.Connections = make([]*Connection, len(w.Connections))
	for i, conn := range w.Connections {
		connCopy := *conn
		clone.Connections[i] = &connCopy
	}

	return &clone
}

// IsTriggerable reports whether schedule/webhook triggers may start this
// workflow. Manual runs are allowed regardless of status.
func (w *Workflow) IsTriggerable() bool {
	return w.Status == WorkflowStatusActive
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)

			continue
		}

		out[k] = v
	}

	return out
}
