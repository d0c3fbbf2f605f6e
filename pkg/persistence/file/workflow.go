package file

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/google/uuid"
)

const workflowsDir = "workflows"

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *store
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{store: &store{root: root}}
}

// List returns filtered workflows, newest first.
func (wr *WorkflowRepository) List(_ context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	ids, err := wr.store.ids(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		var wf models.Workflow

		found, err := wr.store.read(workflowsDir, id, &wf)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
		}

		if found && persistence.MatchWorkflow(&wf, filter) {
			workflows = append(workflows, &wf)
		}
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	return wr.get(id)
}

func (wr *WorkflowRepository) get(id string) (*models.Workflow, error) {
	var wf models.Workflow

	found, err := wr.store.read(workflowsDir, id, &wf)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &wf, nil
}

// GetByWebhookPath returns the workflow with the id if it listens on path.
func (wr *WorkflowRepository) GetByWebhookPath(ctx context.Context, id, path string) (*models.Workflow, error) {
	wf, err := wr.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if wf.WebhookPath != path {
		return nil, persistence.NewWorkflowError("GetByWebhookPath", id, persistence.ErrWorkflowNotFound)
	}

	return wf, nil
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	return wr.store.write(workflowsDir, workflow.ID, workflow)
}

// SaveGraph replaces the graph and its projection in a single file write.
func (wr *WorkflowRepository) SaveGraph(_ context.Context, id string, graph json.RawMessage, nodes []*models.WorkflowNode, connections []*models.Connection) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	wf, err := wr.get(id)
	if err != nil {
		return err
	}

	wf.GraphData = graph
	wf.Nodes = nodes
	wf.Connections = connections
	wf.UpdatedAt = time.Now().UTC()

	return wr.store.write(workflowsDir, id, wf)
}

// RecordExecutionOutcome bumps the run counters of a workflow.
func (wr *WorkflowRepository) RecordExecutionOutcome(_ context.Context, id string, status models.ExecutionStatus, at time.Time) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	wf, err := wr.get(id)
	if err != nil {
		return err
	}

	wf.RecordOutcome(status, at)

	return wr.store.write(workflowsDir, id, wf)
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	found, err := wr.store.remove(workflowsDir, id)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
