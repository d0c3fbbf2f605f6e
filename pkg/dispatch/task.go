// Package dispatch moves workflow runs out of the request path: it queues
// execution tasks, consumes them in workers and fires cron schedules.
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// TasksTopic is the watermill topic tasks are published on.
	TasksTopic = "durgasflow.tasks"

	ExecutionGroup = "durgasflow"
	ScheduledGroup = "durgasflow_scheduled"

	executionTaskPrefix = "durgasflow_execution_"
	scheduledTaskPrefix = "durgasflow_scheduled_"
)

type TaskKind string

const (
	TaskKindExecution TaskKind = "execution"
	TaskKindScheduled TaskKind = "scheduled"
)

// Task is one unit of queued work. Name is stable for the work it describes,
// so queuing the same work twice produces the same name.
type Task struct {
	Name        string    `json:"name"`
	Group       string    `json:"group"`
	Kind        TaskKind  `json:"kind"`
	ExecutionID string    `json:"execution_id,omitempty"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitzero"`
}

// ExecutionTask runs an already created execution.
func ExecutionTask(executionID string) Task {
	return Task{
		Name:        executionTaskPrefix + executionID,
		Group:       ExecutionGroup,
		Kind:        TaskKindExecution,
		ExecutionID: executionID,
	}
}

// ScheduledTask triggers a workflow for one cron firing. Firings are named by
// the minute they belong to.
func ScheduledTask(workflowID string, at time.Time) Task {
	at = at.UTC().Truncate(time.Minute)

	return Task{
		Name:        fmt.Sprintf("%s%s_%d", scheduledTaskPrefix, workflowID, at.Unix()),
		Group:       ScheduledGroup,
		Kind:        TaskKindScheduled,
		WorkflowID:  workflowID,
		ScheduledAt: at,
	}
}

func (t Task) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func UnmarshalTask(payload []byte) (Task, error) {
	var t Task

	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("failed to decode task: %w", err)
	}

	if t.Name == "" || t.Kind == "" {
		return t, fmt.Errorf("task is missing name or kind")
	}

	return t, nil
}

// TaskStatus is the outcome reported by a task body.
type TaskStatus string

const (
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusSkipped TaskStatus = "skipped"
	TaskStatusError   TaskStatus = "error"
)

// TaskResult is what a task body returns to the worker.
type TaskResult struct {
	Status       TaskStatus `json:"status"`
	ExecutionID  string     `json:"execution_id,omitempty"`
	ResultStatus string     `json:"result_status,omitempty"`
	Message      string     `json:"message,omitempty"`
}
