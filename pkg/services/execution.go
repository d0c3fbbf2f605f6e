package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
)

// Executor starts, cancels and retries executions.
type Executor interface {
	ExecuteWorkflow(ctx context.Context, req execution.ExecuteRequest) (*models.Execution, error)
	CancelExecution(ctx context.Context, executionID string) (execution.CancelResult, error)
	RetryExecution(ctx context.Context, executionID, userID string) (*models.Execution, error)
}

// Execution handles execution queries and run requests.
type Execution struct {
	persistence persistence.Persistence
	engine      Executor
	logger      *slog.Logger
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, engine Executor, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: persistence,
		engine:      engine,
		logger:      logger.With("module", "execution_service"),
	}
}

// ExecuteRequest is a manual run request.
type ExecuteRequest struct {
	WorkflowID  string
	TriggerData map[string]any
	TriggeredBy string
	Async       bool
}

// Execute runs a workflow manually.
func (e *Execution) Execute(ctx context.Context, req ExecuteRequest) (*models.Execution, error) {
	if req.TriggerData == nil {
		req.TriggerData = map[string]any{}
	}

	return e.engine.ExecuteWorkflow(ctx, execution.ExecuteRequest{
		WorkflowID:  req.WorkflowID,
		TriggerType: models.TriggerTypeManual,
		TriggerData: req.TriggerData,
		TriggeredBy: req.TriggeredBy,
		Async:       req.Async,
	})
}

// TriggerWebhook runs an active webhook workflow listening on path. When the
// workflow has a secret, secret must match it.
func (e *Execution) TriggerWebhook(ctx context.Context, workflowID, path, secret string, triggerData map[string]any) (*models.Execution, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByWebhookPath(ctx, workflowID, path)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, ErrWebhookNotFound
		}

		return nil, err
	}

	if !workflow.IsActive || workflow.TriggerType != models.TriggerTypeWebhook {
		return nil, ErrWebhookNotFound
	}

	if workflow.WebhookSecret != "" && secret != workflow.WebhookSecret {
		e.logger.WarnContext(ctx, "Rejected webhook with invalid secret", "workflow_id", workflow.ID)

		return nil, ErrWebhookSecretMismatch
	}

	return e.engine.ExecuteWorkflow(ctx, execution.ExecuteRequest{
		Workflow:    workflow,
		TriggerType: models.TriggerTypeWebhook,
		TriggerData: triggerData,
	})
}

// FetchByID retrieves an execution by its ID.
func (e *Execution) FetchByID(ctx context.Context, id string) (*models.Execution, error) {
	return e.persistence.ExecutionRepository().GetByID(ctx, id)
}

// ListExecutions returns executions newest first, at most
// persistence.DefaultExecutionLimit unless filter.Limit says otherwise.
func (e *Execution) ListExecutions(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	if filter.Status != "" && !validExecutionStatus(filter.Status) {
		return nil, NewValidationError(
			"ListExecutions",
			"INVALID_STATUS",
			fmt.Sprintf("invalid execution status '%s'", filter.Status),
			ErrInvalidStatus,
		)
	}

	executions, err := e.persistence.ExecutionRepository().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// Logs returns the log rows of an execution, optionally only those of one level.
func (e *Execution) Logs(ctx context.Context, executionID string, level models.LogLevel) ([]*models.ExecutionLog, error) {
	if _, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID); err != nil {
		return nil, err
	}

	return e.persistence.ExecutionLogRepository().ListByExecution(ctx, executionID, level)
}

// Cancel marks a running execution cancelled.
func (e *Execution) Cancel(ctx context.Context, executionID string) (execution.CancelResult, error) {
	return e.engine.CancelExecution(ctx, executionID)
}

// Retry re-runs an execution with its original trigger data.
func (e *Execution) Retry(ctx context.Context, executionID, userID string) (*models.Execution, error) {
	retry, err := e.engine.RetryExecution(ctx, executionID, userID)
	if err != nil {
		if errors.Is(err, execution.ErrMaxRetriesExceeded) {
			return nil, &ServiceError{
				Op:      "Retry",
				Code:    "RETRIES_EXHAUSTED",
				Message: err.Error(),
				Err:     errors.Join(ErrRetriesExhausted, err),
			}
		}

		return nil, err
	}

	return retry, nil
}

func validExecutionStatus(status models.ExecutionStatus) bool {
	switch status {
	case models.ExecutionStatusPending, models.ExecutionStatusRunning, models.ExecutionStatusCompleted,
		models.ExecutionStatusFailed, models.ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}
