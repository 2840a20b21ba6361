// Package web provides the HTTP handlers for workflow management, manual
// runs, webhook ingestion and the scheduler tick.
package web

import "github.com/flowlet-io/flowlet/pkg/models"

// CreateWorkflowRequest is the body for creating a workflow. New workflows
// start as drafts unless a status is given.
type CreateWorkflowRequest struct {
	Name        string                `json:"name"        validate:"required,min=3"`
	Description string                `json:"description"`
	Status      models.WorkflowStatus `json:"status,omitempty" validate:"omitempty,oneof=draft active paused"`
	Trigger     models.Trigger        `json:"trigger"`
	Nodes       []*models.Node        `json:"nodes"`
	Connections []*models.Connection  `json:"connections,omitempty"`
	ProjectID   string                `json:"project_id,omitempty"`
}

// UpdateWorkflowRequest supports partial updates; nil fields are left
// untouched.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	Status      *models.WorkflowStatus `json:"status,omitempty"      validate:"omitempty,oneof=draft active paused"`
	Trigger     *models.Trigger        `json:"trigger,omitempty"`
	Nodes       []*models.Node         `json:"nodes,omitempty"`
	Connections []*models.Connection   `json:"connections,omitempty"`
}

// RunWorkflowRequest is the body for a manual run. Input becomes the
// run's trigger payload.
type RunWorkflowRequest struct {
	Input map[string]any `json:"input,omitempty"`
}
