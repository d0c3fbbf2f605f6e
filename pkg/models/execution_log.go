package models

import (
	"time"
)

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// ExecutionLog is a per-node log row of a run.
type ExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeType    string         `json:"node_type"`
	NodeTitle   string         `json:"node_title"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
