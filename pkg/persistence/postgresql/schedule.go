package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
)

// ScheduleRepository stores cron schedules keyed by name.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const scheduleColumns = "name, workflow_id, cron_expression, next_due_at, enabled, created_at, updated_at"

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`, schedule.Name, schedule.WorkflowID, schedule.CronExpression, schedule.NextDueAt, schedule.Enabled,
		schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) Get(ctx context.Context, name string) (*models.Schedule, error) {
	schedule, err := scanSchedule(r.db.QueryRowContext(ctx, "SELECT "+scheduleColumns+" FROM schedules WHERE name = $1", name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	return schedule, nil
}

func (r *ScheduleRepository) List(ctx context.Context) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+scheduleColumns+" FROM schedules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	return nil
}

func scanSchedule(row scanner) (*models.Schedule, error) {
	var s models.Schedule

	err := row.Scan(&s.Name, &s.WorkflowID, &s.CronExpression, &s.NextDueAt, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	at := t.Time.UTC()

	return &at
}
