package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// DefaultSyncInterval is how often a running scheduler reloads stored schedules.
const DefaultSyncInterval = time.Minute

// ScheduledQueue receives the tasks of due schedules.
type ScheduledQueue interface {
	QueueScheduledWorkflow(ctx context.Context, task Task) error
}

type scheduleEntry struct {
	id   cron.EntryID
	expr string
}

// Scheduler keeps at most one cron entry per workflow. Schedules are stored
// so that every worker running a scheduler fires them; the per-minute task
// name lets the queue drop the duplicates.
type Scheduler struct {
	repo         persistence.ScheduleRepository
	queue        ScheduledQueue
	cron         *cron.Cron
	entries      map[string]scheduleEntry
	syncInterval time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewScheduler(repo persistence.ScheduleRepository, queue ScheduledQueue, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		repo:         repo,
		queue:        queue,
		cron:         cron.New(cron.WithLocation(time.UTC)),
		entries:      make(map[string]scheduleEntry),
		syncInterval: DefaultSyncInterval,
		logger:       logger.With("module", "scheduler"),
	}
}

// SetupSchedule stores the schedule of a workflow, replacing any previous one.
func (s *Scheduler) SetupSchedule(ctx context.Context, workflowID, cronExpression string) (*models.Schedule, error) {
	schedule, err := models.NewSchedule(workflowID, cronExpression)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.Get(ctx, schedule.Name); err == nil {
		schedule.CreatedAt = existing.CreatedAt
	} else if !persistence.IsScheduleNotFound(err) {
		return nil, err
	}

	if err := s.repo.Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule for workflow %s: %w", workflowID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.register(workflowID, cronExpression); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Schedule set", "workflow_id", workflowID, "cron", cronExpression, "next_due_at", schedule.NextDueAt)

	return schedule, nil
}

// RemoveSchedule deletes the schedule of a workflow. Removing a missing
// schedule is not an error.
func (s *Scheduler) RemoveSchedule(ctx context.Context, workflowID string) error {
	err := s.repo.Delete(ctx, models.ScheduleName(workflowID))
	if err != nil && !persistence.IsScheduleNotFound(err) {
		return fmt.Errorf("failed to delete schedule for workflow %s: %w", workflowID, err)
	}

	s.mu.Lock()
	s.unregister(workflowID)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Schedule removed", "workflow_id", workflowID)

	return nil
}

// Start loads stored schedules, starts firing them and keeps them in sync
// with the store until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if err := s.syncLocked(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	s.cron.Start()

	go s.syncLoop(ctx, s.done)

	s.logger.InfoContext(ctx, "Scheduler started", "schedules", len(s.entries))

	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()

		return
	}

	s.started = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	<-s.cron.Stop().Done()

	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) syncLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Failed to sync schedules", "error", err)
			}
		}
	}
}

// Sync makes the cron entries match the stored enabled schedules.
func (s *Scheduler) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.syncLocked(ctx)
}

func (s *Scheduler) syncLocked(ctx context.Context) error {
	schedules, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	wanted := make(map[string]bool, len(schedules))

	for _, schedule := range schedules {
		if !schedule.Enabled {
			continue
		}

		wanted[schedule.WorkflowID] = true

		if entry, ok := s.entries[schedule.WorkflowID]; ok && entry.expr == schedule.CronExpression {
			continue
		}

		if err := s.register(schedule.WorkflowID, schedule.CronExpression); err != nil {
			s.logger.WarnContext(ctx, "Skipping invalid schedule", "workflow_id", schedule.WorkflowID, "error", err)
		}
	}

	for workflowID := range s.entries {
		if !wanted[workflowID] {
			s.unregister(workflowID)
		}
	}

	return nil
}

// Entries returns the workflow ids with an active cron entry.
func (s *Scheduler) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry.expr
	}

	return out
}

func (s *Scheduler) register(workflowID, expr string) error {
	schedule, err := models.ParseCron(expr)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidSchedule, err)
	}

	s.unregister(workflowID)

	id := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(context.Background(), workflowID, time.Now())
	}))

	s.entries[workflowID] = scheduleEntry{id: id, expr: expr}

	return nil
}

func (s *Scheduler) unregister(workflowID string) {
	if entry, ok := s.entries[workflowID]; ok {
		s.cron.Remove(entry.id)
		delete(s.entries, workflowID)
	}
}

func (s *Scheduler) fire(ctx context.Context, workflowID string, at time.Time) {
	task := ScheduledTask(workflowID, at)

	if err := s.queue.QueueScheduledWorkflow(ctx, task); err != nil {
		s.logger.ErrorContext(ctx, "Failed to queue scheduled run", "workflow_id", workflowID, "task", task.Name, "error", err)
	}
}
