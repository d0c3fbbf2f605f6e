package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
)

const workflowUnavailable = "Workflow not found or inactive"

// Runner is the part of the engine task bodies need.
type Runner interface {
	RunExecution(ctx context.Context, executionID string) (*models.Execution, error)
	ExecuteWorkflow(ctx context.Context, req execution.ExecuteRequest) (*models.Execution, error)
}

// Dispatcher queues runs on a Backend and implements the task bodies
// workers call.
type Dispatcher struct {
	runner    Runner
	workflows persistence.WorkflowRepository
	backend   Backend
	logger    *slog.Logger
}

func NewDispatcher(runner Runner, workflows persistence.WorkflowRepository, backend Backend, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		runner:    runner,
		workflows: workflows,
		backend:   backend,
		logger:    logger.With("module", "dispatcher"),
	}

	if inline, ok := backend.(*InlineBackend); ok {
		inline.Bind(d)
	}

	return d
}

// QueueExecution hands an execution to the backend under its stable task name.
func (d *Dispatcher) QueueExecution(ctx context.Context, executionID string) error {
	task := ExecutionTask(executionID)

	d.logger.InfoContext(ctx, "Queueing execution", "execution_id", executionID, "task", task.Name)

	return d.backend.Enqueue(ctx, task)
}

// QueueScheduledWorkflow queues the firing of a workflow schedule.
func (d *Dispatcher) QueueScheduledWorkflow(ctx context.Context, task Task) error {
	d.logger.InfoContext(ctx, "Queueing scheduled run", "workflow_id", task.WorkflowID, "task", task.Name)

	return d.backend.Enqueue(ctx, task)
}

// HandleTask runs a task body by kind.
func (d *Dispatcher) HandleTask(ctx context.Context, task Task) (TaskResult, error) {
	switch task.Kind {
	case TaskKindExecution:
		return d.RunExecutionTask(ctx, task.ExecutionID)
	case TaskKindScheduled:
		return d.RunScheduledWorkflowTask(ctx, task)
	default:
		return TaskResult{Status: TaskStatusError, Message: "unknown task kind"}, fmt.Errorf("unknown task kind: %s", task.Kind)
	}
}

// RunExecutionTask runs a queued execution. Executions that already left
// pending are reported as they are.
func (d *Dispatcher) RunExecutionTask(ctx context.Context, executionID string) (TaskResult, error) {
	exec, err := d.runner.RunExecution(ctx, executionID)
	if err != nil {
		d.logger.ErrorContext(ctx, "Execution task failed", "execution_id", executionID, "error", err)

		return TaskResult{Status: TaskStatusError, ExecutionID: executionID, Message: err.Error()}, err
	}

	return TaskResult{
		Status:       TaskStatusSuccess,
		ExecutionID:  exec.ID,
		ResultStatus: string(exec.Status),
	}, nil
}

// RunScheduledWorkflowTask triggers a schedule-driven run. A workflow that
// was deleted or deactivated since the schedule was set is skipped quietly.
func (d *Dispatcher) RunScheduledWorkflowTask(ctx context.Context, task Task) (TaskResult, error) {
	wf, err := d.workflows.GetByID(ctx, task.WorkflowID)
	if err != nil && !persistence.IsWorkflowNotFound(err) {
		d.logger.ErrorContext(ctx, "Failed to load scheduled workflow", "workflow_id", task.WorkflowID, "error", err)

		return TaskResult{Status: TaskStatusError, Message: err.Error()}, nil
	}

	if wf == nil || !wf.IsActive {
		d.logger.InfoContext(ctx, "Skipping scheduled run", "workflow_id", task.WorkflowID, "reason", workflowUnavailable)

		return TaskResult{Status: TaskStatusSkipped, Message: workflowUnavailable}, nil
	}

	triggerData := map[string]any{"scheduled": true}
	if !task.ScheduledAt.IsZero() {
		triggerData["scheduled_at"] = task.ScheduledAt.Format("2006-01-02T15:04:05Z07:00")
	}

	exec, err := d.runner.ExecuteWorkflow(ctx, execution.ExecuteRequest{
		Workflow:    wf,
		TriggerType: models.TriggerTypeSchedule,
		TriggerData: triggerData,
		TriggeredBy: "scheduler",
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Scheduled run failed", "workflow_id", wf.ID, "error", err)

		return TaskResult{Status: TaskStatusError, Message: err.Error()}, nil
	}

	return TaskResult{
		Status:       TaskStatusSuccess,
		ExecutionID:  exec.ID,
		ResultStatus: string(exec.Status),
	}, nil
}
