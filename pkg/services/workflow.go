package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/durgasflow/durgasflow/pkg/graph"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/google/uuid"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// ScheduleManager registers the recurring trigger of schedule workflows.
type ScheduleManager interface {
	SetupSchedule(ctx context.Context, workflowID, cronExpression string) (*models.Schedule, error)
	RemoveSchedule(ctx context.Context, workflowID string) error
}

type Workflow struct {
	persistence persistence.Persistence
	schedules   ScheduleManager
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service. schedules may be nil, in which
// case schedule workflows are activated without a recurring trigger.
func NewWorkflow(persistence persistence.Persistence, schedules ScheduleManager, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: persistence,
		schedules:   schedules,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	Owner       string
	Status      models.WorkflowStatus
	TriggerType models.TriggerType
}

// ListWorkflows retrieves workflows, newest first.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) ([]*models.Workflow, error) {
	if req.Status != "" && !validStatus(req.Status) {
		return nil, NewValidationError(
			"ListWorkflows",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", req.Status),
			ErrInvalidStatus,
		)
	}

	if req.TriggerType != "" && !req.TriggerType.Valid() {
		return nil, NewValidationError(
			"ListWorkflows",
			"INVALID_TRIGGER_TYPE",
			fmt.Sprintf("invalid trigger type '%s'", req.TriggerType),
			ErrInvalidTriggerType,
		)
	}

	workflows, err := w.persistence.WorkflowRepository().List(ctx, persistence.WorkflowFilter{
		Owner:       strings.TrimSpace(req.Owner),
		Status:      req.Status,
		TriggerType: req.TriggerType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// CreateWorkflowRequest describes a new workflow. Zero values take defaults:
// manual trigger and an empty graph document.
type CreateWorkflowRequest struct {
	Name         string
	Description  string
	TriggerType  models.TriggerType
	GraphData    json.RawMessage
	Tags         []string
	Settings     models.Settings
	ScheduleCron string
	Owner        string
}

// Create validates and stores a new draft workflow.
func (w *Workflow) Create(ctx context.Context, req CreateWorkflowRequest) (*models.Workflow, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrWorkflowNameRequired
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerTypeManual
	}

	workflow := &models.Workflow{
		Name:         name,
		Description:  req.Description,
		TriggerType:  triggerType,
		Status:       models.WorkflowStatusDraft,
		GraphData:    req.GraphData,
		Tags:         req.Tags,
		Settings:     req.Settings,
		ScheduleCron: req.ScheduleCron,
		Owner:        req.Owner,
	}

	if len(workflow.GraphData) == 0 {
		workflow.GraphData = models.EmptyGraph()
	}

	if workflow.Tags == nil {
		workflow.Tags = []string{}
	}

	if workflow.Settings == nil {
		workflow.Settings = models.Settings{}
	}

	if err := w.prepare(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Created workflow", "workflow_id", workflow.ID, "name", workflow.Name)

	return workflow, nil
}

// UpdateWorkflowRequest carries a partial update. Nil fields are left untouched.
type UpdateWorkflowRequest struct {
	Name         *string
	Description  *string
	TriggerType  *models.TriggerType
	GraphData    json.RawMessage
	Tags         []string
	Settings     models.Settings
	ScheduleCron *string
}

// Update applies a partial update. Active workflows get their schedule
// re-registered when the trigger changed.
func (w *Workflow) Update(ctx context.Context, id string, req UpdateWorkflowRequest) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrWorkflowNameRequired
		}

		workflow.Name = name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.TriggerType != nil {
		workflow.TriggerType = *req.TriggerType
	}

	if req.GraphData != nil {
		workflow.GraphData = req.GraphData
	}

	if req.Tags != nil {
		workflow.Tags = req.Tags
	}

	if req.Settings != nil {
		workflow.Settings = req.Settings
	}

	if req.ScheduleCron != nil {
		workflow.ScheduleCron = *req.ScheduleCron
	}

	if err := w.prepare(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	if workflow.IsActive {
		if err := w.syncSchedule(ctx, workflow); err != nil {
			return nil, err
		}
	}

	w.logger.InfoContext(ctx, "Updated workflow", "workflow_id", workflow.ID)

	return workflow, nil
}

// SaveGraph stores the editor document verbatim and rebuilds its projection.
func (w *Workflow) SaveGraph(ctx context.Context, id string, doc json.RawMessage) (*models.Workflow, error) {
	projection, err := graph.Project(doc)
	if err != nil {
		return nil, NewValidationError("SaveGraph", "INVALID_GRAPH", err.Error(), ErrInvalidGraph)
	}

	for _, skipped := range projection.Skipped {
		w.logger.DebugContext(ctx, "Dropped graph element", "workflow_id", id, "error", skipped)
	}

	repo := w.persistence.WorkflowRepository()
	if err := repo.SaveGraph(ctx, id, doc, projection.Nodes, projection.Connections); err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Saved graph", "workflow_id", id,
		"nodes", len(projection.Nodes), "connections", len(projection.Connections))

	return repo.GetByID(ctx, id)
}

// Delete removes a workflow and its schedule.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	if err := w.persistence.WorkflowRepository().Delete(ctx, id); err != nil {
		return err
	}

	if w.schedules != nil {
		if err := w.schedules.RemoveSchedule(ctx, id); err != nil {
			w.logger.WarnContext(ctx, "Failed to remove schedule of deleted workflow", "workflow_id", id, "error", err)
		}
	}

	return nil
}

// Duplicate copies a workflow into a new draft owned by owner.
func (w *Workflow) Duplicate(ctx context.Context, id, owner string) (*models.Workflow, error) {
	source, err := w.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if owner == "" {
		owner = source.Owner
	}

	return w.Create(ctx, CreateWorkflowRequest{
		Name:         source.Name + " (Copy)",
		Description:  source.Description,
		TriggerType:  source.TriggerType,
		GraphData:    slices.Clone(source.GraphData),
		Tags:         slices.Clone(source.Tags),
		Settings:     source.Settings.Clone(),
		ScheduleCron: source.ScheduleCron,
		Owner:        owner,
	})
}

// Stats summarizes the workflows of one owner.
type Stats struct {
	TotalWorkflows  int   `json:"total_workflows"`
	ActiveWorkflows int   `json:"active_workflows"`
	DraftWorkflows  int   `json:"draft_workflows"`
	TotalExecutions int64 `json:"total_executions"`
	TotalSuccesses  int64 `json:"total_successes"`
	TotalFailures   int64 `json:"total_failures"`
}

// Stats aggregates the run counters of every workflow owned by owner.
func (w *Workflow) Stats(ctx context.Context, owner string) (*Stats, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx, persistence.WorkflowFilter{Owner: owner})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	stats := &Stats{TotalWorkflows: len(workflows)}

	for _, wf := range workflows {
		if wf.IsActive {
			stats.ActiveWorkflows++
		}

		if wf.Status == models.WorkflowStatusDraft {
			stats.DraftWorkflows++
		}

		stats.TotalExecutions += wf.ExecutionCount
		stats.TotalSuccesses += wf.SuccessCount
		stats.TotalFailures += wf.FailureCount
	}

	return stats, nil
}

// prepare validates a workflow before it is stored and fills the derived
// fields: projection, webhook path and schedule.
func (w *Workflow) prepare(workflow *models.Workflow) error {
	if !workflow.TriggerType.Valid() {
		return NewValidationError(
			"prepare",
			"INVALID_TRIGGER_TYPE",
			fmt.Sprintf("invalid trigger type '%s'", workflow.TriggerType),
			ErrInvalidTriggerType,
		)
	}

	projection, err := graph.Project(workflow.GraphData)
	if err != nil {
		return NewValidationError("prepare", "INVALID_GRAPH", err.Error(), ErrInvalidGraph)
	}

	workflow.Nodes = projection.Nodes
	workflow.Connections = projection.Connections

	if workflow.TriggerType == models.TriggerTypeWebhook && workflow.WebhookPath == "" {
		workflow.WebhookPath = uuid.NewString()
	}

	if workflow.TriggerType == models.TriggerTypeSchedule && workflow.ScheduleCron == "" {
		workflow.ScheduleCron = scheduleFromNodes(workflow.Nodes)
	}

	if workflow.ScheduleCron != "" {
		if _, err := models.ParseCron(workflow.ScheduleCron); err != nil {
			return NewValidationError("prepare", "INVALID_SCHEDULE", err.Error(), ErrInvalidSchedule)
		}
	}

	return nil
}

// scheduleFromNodes returns the cron of the first schedule trigger node.
func scheduleFromNodes(nodes []*models.WorkflowNode) string {
	for _, n := range nodes {
		if n.Type != "trigger/schedule" {
			continue
		}

		if cron, ok := n.Config["cron"].(string); ok && cron != "" {
			return cron
		}
	}

	return ""
}

func validStatus(status models.WorkflowStatus) bool {
	switch status {
	case models.WorkflowStatusDraft, models.WorkflowStatusActive, models.WorkflowStatusArchived:
		return true
	default:
		return false
	}
}
