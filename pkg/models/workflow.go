// Package models defines the core domain models for graph-based workflow automation
package models

import (
	"encoding/json"
	"time"
)

// TriggerType describes how a workflow run was initiated.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeEvent    TriggerType = "event"
)

// Valid reports whether t is one of the known trigger types.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTypeManual, TriggerTypeWebhook, TriggerTypeSchedule, TriggerTypeEvent:
		return true
	default:
		return false
	}
}

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// Settings is the free-form workflow settings object.
type Settings map[string]any

const settingContinueOnError = "continue_on_error"

// ContinueOnError reports whether node failures should not abort a run.
func (s Settings) ContinueOnError() bool {
	v, _ := s[settingContinueOnError].(bool)

	return v
}

// Clone returns a shallow copy of the settings.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}

	return out
}

// Workflow is an automation definition. GraphData is the canonical document
// produced by the graph editor; Nodes and Connections are projections of it.
type Workflow struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"                      validate:"required"`
	Description    string          `json:"description"`
	TriggerType    TriggerType     `json:"trigger_type"              validate:"required"`
	Status         WorkflowStatus  `json:"status"`
	GraphData      json.RawMessage `json:"graph_data"`
	Nodes          []*WorkflowNode `json:"nodes"`
	Connections    []*Connection   `json:"connections"`
	Tags           []string        `json:"tags"`
	Settings       Settings        `json:"settings"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	IsActive       bool            `json:"is_active"`
	WebhookPath    string          `json:"webhook_path,omitempty"`
	WebhookSecret  string          `json:"webhook_secret,omitempty"`
	ScheduleCron   string          `json:"schedule_cron,omitempty"`
	ExecutionCount int64           `json:"execution_count"`
	SuccessCount   int64           `json:"success_count"`
	FailureCount   int64           `json:"failure_count"`
	LastExecutedAt *time.Time      `json:"last_executed_at,omitempty"`
	Owner          string          `json:"owner"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NodeByID returns the projected node with the given graph node id.
func (w *Workflow) NodeByID(nodeID string) (*WorkflowNode, bool) {
	for _, n := range w.Nodes {
		if n.NodeID == nodeID {
			return n, true
		}
	}

	return nil, false
}

// RecordOutcome folds a terminal execution status into the counters.
func (w *Workflow) RecordOutcome(status ExecutionStatus, at time.Time) {
	w.ExecutionCount++

	switch status {
	case ExecutionStatusCompleted:
		w.SuccessCount++
	case ExecutionStatusFailed:
		w.FailureCount++
	}

	w.LastExecutedAt = &at
}

// EmptyGraph is the document a new workflow starts with.
func EmptyGraph() json.RawMessage {
	return json.RawMessage(`{"version":0.4,"config":{},"nodes":[],"links":[],"groups":[],"extra":{}}`)
}
