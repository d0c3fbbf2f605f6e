package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a standard 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// ScheduleName is the periodic task name for a workflow.
func ScheduleName(workflowID string) string {
	return "durgasflow_cron_" + workflowID
}

// Schedule is the recurring trigger of a schedule-driven workflow.
type Schedule struct {
	// Name is unique per workflow, see ScheduleName.
	Name string `json:"name" validate:"required"`

	WorkflowID string `json:"workflow_id" validate:"required"`

	// CronExpression uses the 5-field format (minute hour day month weekday).
	CronExpression string `json:"cron_expression" validate:"required"`

	// NextDueAt is informational; firing is driven by the in-process cron.
	NextDueAt time.Time `json:"next_due_at"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSchedule creates an enabled schedule with the next execution time calculated.
func NewSchedule(workflowID, cronExpression string) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		Name:           ScheduleName(workflowID),
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		CreatedAt:      now,
		UpdatedAt:      now,
		Enabled:        true,
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// UpdateNextDueAt recomputes the next execution time from now.
func (s *Schedule) UpdateNextDueAt() error {
	return s.calculateNextDueAt(time.Now().UTC())
}

func (s *Schedule) calculateNextDueAt(referenceTime time.Time) error {
	cronSchedule, err := ParseCron(s.CronExpression)
	if err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}

	s.NextDueAt = cronSchedule.Next(referenceTime)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.Name == "" || s.WorkflowID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	if _, err := ParseCron(s.CronExpression); err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}

	return nil
}

var (
	// ErrInvalidSchedule is returned when schedule validation fails
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)
