// Package persistence provides the storage abstraction for workflows, their
// graph projections, executions, execution logs and schedules.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/durgasflow/durgasflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ExecutionLogRepository() ExecutionLogRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowFilter narrows a workflow listing. Zero values match everything.
type WorkflowFilter struct {
	Owner       string
	Status      models.WorkflowStatus
	TriggerType models.TriggerType
	Active      *bool
}

type WorkflowRepository interface {
	// List returns workflows ordered by creation time, newest first.
	List(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)

	// GetByID returns ErrWorkflowNotFound when no workflow has the id.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// GetByWebhookPath finds the workflow listening on a webhook path.
	GetByWebhookPath(ctx context.Context, id, path string) (*models.Workflow, error)

	// Save upserts the workflow including its graph document and projection.
	Save(ctx context.Context, workflow *models.Workflow) error

	// SaveGraph replaces the graph document and rebuilds the node and
	// connection projection atomically. Concurrent calls for one workflow
	// are serialized.
	SaveGraph(ctx context.Context, id string, graph json.RawMessage, nodes []*models.WorkflowNode, connections []*models.Connection) error

	// RecordExecutionOutcome bumps the run counters of a workflow.
	RecordExecutionOutcome(ctx context.Context, id string, status models.ExecutionStatus, at time.Time) error

	Delete(ctx context.Context, id string) error
}

// ExecutionFilter narrows an execution listing. Limit <= 0 means DefaultExecutionLimit.
type ExecutionFilter struct {
	WorkflowID string
	Status     models.ExecutionStatus
	Limit      int
}

// DefaultExecutionLimit caps execution listings.
const DefaultExecutionLimit = 50

type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error

	// Save overwrites the stored execution unconditionally.
	Save(ctx context.Context, execution *models.Execution) error

	// Transition stores execution only if the stored status is still from.
	// It reports whether the write happened.
	Transition(ctx context.Context, execution *models.Execution, from models.ExecutionStatus) (bool, error)

	// GetByID returns ErrExecutionNotFound when no execution has the id.
	GetByID(ctx context.Context, id string) (*models.Execution, error)

	// List returns executions ordered by creation time, newest first.
	List(ctx context.Context, filter ExecutionFilter) ([]*models.Execution, error)
}

type ExecutionLogRepository interface {
	Append(ctx context.Context, log *models.ExecutionLog) error
	Update(ctx context.Context, log *models.ExecutionLog) error

	// ListByExecution returns the logs of a run in creation order. An empty
	// level returns every level.
	ListByExecution(ctx context.Context, executionID string, level models.LogLevel) ([]*models.ExecutionLog, error)
}

type ScheduleRepository interface {
	// Save upserts by schedule name.
	Save(ctx context.Context, schedule *models.Schedule) error
	Get(ctx context.Context, name string) (*models.Schedule, error)
	List(ctx context.Context) ([]*models.Schedule, error)
	Delete(ctx context.Context, name string) error
}

// MatchWorkflow reports whether wf passes filter.
func MatchWorkflow(wf *models.Workflow, filter WorkflowFilter) bool {
	if filter.Owner != "" && wf.Owner != filter.Owner {
		return false
	}

	if filter.Status != "" && wf.Status != filter.Status {
		return false
	}

	if filter.TriggerType != "" && wf.TriggerType != filter.TriggerType {
		return false
	}

	if filter.Active != nil && wf.IsActive != *filter.Active {
		return false
	}

	return true
}
