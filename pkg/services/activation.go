package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/durgasflow/durgasflow/pkg/models"
)

// Activate makes a workflow live. Schedule workflows get their cron
// registered; webhook workflows start accepting requests on their path.
func (w *Workflow) Activate(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := validateForActivation(workflow); err != nil {
		return nil, err
	}

	workflow.IsActive = true
	workflow.Status = models.WorkflowStatusActive

	if err := w.syncSchedule(ctx, workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to activate workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Activated workflow", "workflow_id", workflow.ID, "trigger_type", workflow.TriggerType)

	return workflow, nil
}

// Deactivate stops a workflow from being triggered and returns it to draft.
func (w *Workflow) Deactivate(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.IsActive = false
	if workflow.Status == models.WorkflowStatusActive {
		workflow.Status = models.WorkflowStatusDraft
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to deactivate workflow: %w", err)
	}

	if w.schedules != nil {
		if err := w.schedules.RemoveSchedule(ctx, workflow.ID); err != nil {
			return nil, fmt.Errorf("failed to remove schedule: %w", err)
		}
	}

	w.logger.InfoContext(ctx, "Deactivated workflow", "workflow_id", workflow.ID)

	return workflow, nil
}

// syncSchedule makes the registered schedule match an active workflow.
func (w *Workflow) syncSchedule(ctx context.Context, workflow *models.Workflow) error {
	if w.schedules == nil {
		return nil
	}

	if workflow.TriggerType != models.TriggerTypeSchedule || workflow.ScheduleCron == "" {
		if err := w.schedules.RemoveSchedule(ctx, workflow.ID); err != nil {
			return fmt.Errorf("failed to remove schedule: %w", err)
		}

		return nil
	}

	if _, err := w.schedules.SetupSchedule(ctx, workflow.ID, workflow.ScheduleCron); err != nil {
		if errors.Is(err, models.ErrInvalidSchedule) {
			return NewValidationError("syncSchedule", "INVALID_SCHEDULE", err.Error(), ErrInvalidSchedule)
		}

		return fmt.Errorf("failed to set up schedule: %w", err)
	}

	return nil
}

// validateForActivation ensures a workflow can be triggered once active.
func validateForActivation(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return ErrWorkflowArchived
	}

	if workflow.TriggerType == models.TriggerTypeSchedule && workflow.ScheduleCron == "" {
		return NewValidationError(
			"validateForActivation",
			"SCHEDULE_REQUIRED",
			"schedule workflows need a cron expression",
			ErrInvalidSchedule,
		)
	}

	return nil
}
