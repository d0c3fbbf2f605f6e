// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"encoding/json"

	"github.com/durgasflow/durgasflow/pkg/models"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name         string          `json:"name"                    validate:"required,min=1,max=255"`
	Description  string          `json:"description"`
	TriggerType  string          `json:"trigger_type,omitempty"  validate:"omitempty,oneof=manual webhook schedule event"`
	GraphData    json.RawMessage `json:"graph_data,omitempty"`
	Tags         []string        `json:"tags,omitempty"          validate:"omitempty,dive,required"`
	Settings     models.Settings `json:"settings,omitempty"`
	ScheduleCron string          `json:"schedule_cron,omitempty"`
	Owner        string          `json:"owner"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name         *string         `json:"name,omitempty"          validate:"omitempty,min=1,max=255"`
	Description  *string         `json:"description,omitempty"`
	TriggerType  *string         `json:"trigger_type,omitempty"  validate:"omitempty,oneof=manual webhook schedule event"`
	GraphData    json.RawMessage `json:"graph_data,omitempty"`
	Tags         []string        `json:"tags,omitempty"          validate:"omitempty,dive,required"`
	Settings     models.Settings `json:"settings,omitempty"`
	ScheduleCron *string         `json:"schedule_cron,omitempty"`
}

// SaveGraphRequest carries the editor document.
type SaveGraphRequest struct {
	GraphData json.RawMessage `json:"graph_data" validate:"required"`
}

// ExecuteWorkflowRequest represents the request body for a manual run.
type ExecuteWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data"`
	Async       bool           `json:"async"`
	TriggeredBy string         `json:"triggered_by"`
}

// RetryExecutionRequest represents the optional body of a retry.
type RetryExecutionRequest struct {
	TriggeredBy string `json:"triggered_by"`
}

// ExecuteWorkflowResponse is returned after a run was started.
type ExecuteWorkflowResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
	Async       bool                   `json:"async"`
}

// GraphResponse is the graph document of a workflow.
type GraphResponse struct {
	WorkflowID string          `json:"workflow_id"`
	GraphData  json.RawMessage `json:"graph_data"`
	Saved      bool            `json:"saved,omitempty"`
}

// ActivationResponse reports the activation state after activate or deactivate.
type ActivationResponse struct {
	Status   string `json:"status"`
	IsActive bool   `json:"is_active"`
}

// WebhookResponse is returned to webhook callers.
type WebhookResponse struct {
	Success     bool                   `json:"success"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
	Error       string                 `json:"error,omitempty"`
}
