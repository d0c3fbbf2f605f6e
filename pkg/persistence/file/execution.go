package file

import (
	"context"
	"sort"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
)

const (
	executionsDir    = "executions"
	executionLogsDir = "execution_logs"
	schedulesDir     = "schedules"
)

// ExecutionRepository stores one file per execution.
type ExecutionRepository struct {
	store *store
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var existing models.Execution

	found, err := r.store.read(executionsDir, execution.ID, &existing)
	if err != nil {
		return err
	}

	if found {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	return r.store.write(executionsDir, execution.ID, execution)
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(executionsDir, execution.ID, execution)
}

func (r *ExecutionRepository) Transition(_ context.Context, execution *models.Execution, from models.ExecutionStatus) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, err := r.get(execution.ID)
	if err != nil {
		return false, err
	}

	if current.Status != from {
		return false, nil
	}

	return true, r.store.write(executionsDir, execution.ID, execution)
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.get(id)
}

func (r *ExecutionRepository) get(id string) (*models.Execution, error) {
	var execution models.Execution

	found, err := r.store.read(executionsDir, id, &execution)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

func (r *ExecutionRepository) List(_ context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids, err := r.store.ids(executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		var e models.Execution

		found, err := r.store.read(executionsDir, id, &e)
		if err != nil {
			return nil, err
		}

		if !found {
			continue
		}

		if filter.WorkflowID != "" && e.WorkflowID != filter.WorkflowID {
			continue
		}

		if filter.Status != "" && e.Status != filter.Status {
			continue
		}

		executions = append(executions, &e)
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = persistence.DefaultExecutionLimit
	}

	if len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

// ExecutionLogRepository keeps the logs of one execution in one file.
type ExecutionLogRepository struct {
	store *store
}

func (r *ExecutionLogRepository) load(executionID string) ([]*models.ExecutionLog, error) {
	logs := []*models.ExecutionLog{}

	if _, err := r.store.read(executionLogsDir, executionID, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}

func (r *ExecutionLogRepository) Append(_ context.Context, log *models.ExecutionLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	logs, err := r.load(log.ExecutionID)
	if err != nil {
		return err
	}

	logs = append(logs, log)

	return r.store.write(executionLogsDir, log.ExecutionID, logs)
}

func (r *ExecutionLogRepository) Update(_ context.Context, log *models.ExecutionLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	logs, err := r.load(log.ExecutionID)
	if err != nil {
		return err
	}

	for i, l := range logs {
		if l.ID == log.ID {
			logs[i] = log

			return r.store.write(executionLogsDir, log.ExecutionID, logs)
		}
	}

	return persistence.ErrExecutionLogNotFound
}

func (r *ExecutionLogRepository) ListByExecution(_ context.Context, executionID string, level models.LogLevel) ([]*models.ExecutionLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	logs, err := r.load(executionID)
	if err != nil {
		return nil, err
	}

	if level == "" {
		return logs, nil
	}

	filtered := make([]*models.ExecutionLog, 0, len(logs))
	for _, l := range logs {
		if l.Level == level {
			filtered = append(filtered, l)
		}
	}

	return filtered, nil
}

// ScheduleRepository stores one file per schedule name.
type ScheduleRepository struct {
	store *store
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(schedulesDir, schedule.Name, schedule)
}

func (r *ScheduleRepository) Get(_ context.Context, name string) (*models.Schedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var schedule models.Schedule

	found, err := r.store.read(schedulesDir, name, &schedule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrScheduleNotFound
	}

	return &schedule, nil
}

func (r *ScheduleRepository) List(_ context.Context) ([]*models.Schedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	names, err := r.store.ids(schedulesDir)
	if err != nil {
		return nil, err
	}

	schedules := make([]*models.Schedule, 0, len(names))

	for _, name := range names {
		var s models.Schedule

		found, err := r.store.read(schedulesDir, name, &s)
		if err != nil {
			return nil, err
		}

		if found {
			schedules = append(schedules, &s)
		}
	}

	sort.Slice(schedules, func(i, j int) bool { return schedules[i].Name < schedules[j].Name })

	return schedules, nil
}

func (r *ScheduleRepository) Delete(_ context.Context, name string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.remove(schedulesDir, name)

	return err
}
