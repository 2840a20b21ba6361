package models

import "time"

// RunStatus is the run state machine: running -> completed | failed. A run
// never leaves a terminal state.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one execution attempt of a workflow against a trigger payload.
// Input is captured at start and immutable; Output and Error are written
// exactly once, at finalization.
type Run struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Status     RunStatus      `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Steps      []*RunStep     `json:"steps,omitempty"`
}

// RunStepStatus tracks one node's execution inside a run.
type RunStepStatus string

const (
	RunStepStatusPending   RunStepStatus = "pending"
	RunStepStatusRunning   RunStepStatus = "running"
	RunStepStatusCompleted RunStepStatus = "completed"
	RunStepStatusFailed    RunStepStatus = "failed"
)

// RunStep is the record of one node's execution within a run. Steps are
// never retried in-run; a retry is a new run.
type RunStep struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	NodeID     string        `json:"node_id"`
	Name       string        `json:"name"`
	Status     RunStepStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// RunResult carries the terminal outcome applied by Finalize.
type RunResult struct {
	Status RunStatus      `json:"status"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}
