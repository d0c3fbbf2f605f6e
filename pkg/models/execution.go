package models

import (
	"time"
)

// ExecutionStatus represents the state of a single workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// DefaultMaxRetries is the retry ceiling for new executions.
const DefaultMaxRetries = 3

// NodeResultStatus is the outcome of one node in a run.
type NodeResultStatus string

const (
	NodeResultSuccess NodeResultStatus = "success"
	NodeResultError   NodeResultStatus = "error"
)

// NodeResult records what a node produced, or why it failed.
type NodeResult struct {
	Status NodeResultStatus `json:"status"`
	Output any              `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Execution is one run of a workflow.
type Execution struct {
	ID           string                `json:"id"`
	WorkflowID   string                `json:"workflow_id"`
	TriggerType  TriggerType           `json:"trigger_type"`
	TriggerData  map[string]any        `json:"trigger_data"`
	TriggeredBy  string                `json:"triggered_by,omitempty"`
	Status       ExecutionStatus       `json:"status"`
	NodeResults  map[string]NodeResult `json:"node_results"`
	ResultData   map[string]any        `json:"result_data,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	ErrorStack   string                `json:"error_stack,omitempty"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	FinishedAt   *time.Time            `json:"finished_at,omitempty"`
	RetryCount   int                   `json:"retry_count"`
	MaxRetries   int                   `json:"max_retries"`
	RetryOf      string                `json:"retry_of,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// NewExecution builds a pending execution. The trigger data is copied so later
// mutation by the caller does not leak into the snapshot.
func NewExecution(id, workflowID string, triggerType TriggerType, triggerData map[string]any, triggeredBy string) *Execution {
	return &Execution{
		ID:          id,
		WorkflowID:  workflowID,
		TriggerType: triggerType,
		TriggerData: CopyMap(triggerData),
		TriggeredBy: triggeredBy,
		Status:      ExecutionStatusPending,
		NodeResults: map[string]NodeResult{},
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   time.Now().UTC(),
	}
}

// Start moves the execution into running.
func (e *Execution) Start(at time.Time) {
	e.Status = ExecutionStatusRunning
	e.StartedAt = &at
}

// Complete marks the execution successful.
func (e *Execution) Complete(result map[string]any, at time.Time) {
	e.Status = ExecutionStatusCompleted
	e.ResultData = result
	e.FinishedAt = &at
}

// Fail marks the execution failed with the given message and stack.
func (e *Execution) Fail(message, stack string, at time.Time) {
	e.Status = ExecutionStatusFailed
	e.ErrorMessage = message
	e.ErrorStack = stack
	e.FinishedAt = &at
}

// Cancel marks the execution cancelled.
func (e *Execution) Cancel(at time.Time) {
	e.Status = ExecutionStatusCancelled
	e.FinishedAt = &at
}

// CanRetry reports whether another retry is allowed.
func (e *Execution) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// Duration is the wall time of a finished run.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}

	return e.FinishedAt.Sub(*e.StartedAt)
}

// CopyMap returns a deep copy of nested maps and slices in m.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}

	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}

		return out
	default:
		return v
	}
}
