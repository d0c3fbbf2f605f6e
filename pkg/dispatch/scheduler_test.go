package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []Task
}

func (q *recordingQueue) QueueScheduledWorkflow(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = append(q.tasks, task)

	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *recordingQueue) {
	t.Helper()

	queue := &recordingQueue{}
	p := file.NewPersistence(t.TempDir())

	return NewScheduler(p.ScheduleRepository(), queue, slog.Default()), queue
}

func TestScheduler_SetupScheduleReplaces(t *testing.T) {
	s, _ := newTestScheduler(t)

	first, err := s.SetupSchedule(t.Context(), "wf1", "0 * * * *")
	require.NoError(t, err)
	assert.Equal(t, "durgasflow_cron_wf1", first.Name)

	second, err := s.SetupSchedule(t.Context(), "wf1", "*/5 * * * *")
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	assert.Equal(t, map[string]string{"wf1": "*/5 * * * *"}, s.Entries())
	assert.Len(t, s.cron.Entries(), 1)

	stored, err := s.repo.List(t.Context())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "*/5 * * * *", stored[0].CronExpression)
}

func TestScheduler_SetupScheduleRejectsBadCron(t *testing.T) {
	s, _ := newTestScheduler(t)

	_, err := s.SetupSchedule(t.Context(), "wf1", "every day")
	require.ErrorIs(t, err, models.ErrInvalidSchedule)
	assert.Empty(t, s.Entries())
}

func TestScheduler_RemoveSchedule(t *testing.T) {
	s, _ := newTestScheduler(t)

	_, err := s.SetupSchedule(t.Context(), "wf1", "0 * * * *")
	require.NoError(t, err)

	require.NoError(t, s.RemoveSchedule(t.Context(), "wf1"))
	require.NoError(t, s.RemoveSchedule(t.Context(), "wf1"))

	assert.Empty(t, s.Entries())
	assert.Empty(t, s.cron.Entries())

	stored, err := s.repo.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestScheduler_SyncFollowsStore(t *testing.T) {
	s, _ := newTestScheduler(t)

	// written by another process
	other, err := models.NewSchedule("wf2", "30 6 * * 1")
	require.NoError(t, err)
	require.NoError(t, s.repo.Save(t.Context(), other))

	disabled, err := models.NewSchedule("wf3", "0 0 * * *")
	require.NoError(t, err)
	disabled.Enabled = false
	require.NoError(t, s.repo.Save(t.Context(), disabled))

	require.NoError(t, s.Sync(t.Context()))
	assert.Equal(t, map[string]string{"wf2": "30 6 * * 1"}, s.Entries())

	require.NoError(t, s.repo.Delete(t.Context(), other.Name))
	require.NoError(t, s.Sync(t.Context()))
	assert.Empty(t, s.Entries())
}

func TestScheduler_StartStop(t *testing.T) {
	s, _ := newTestScheduler(t)

	stored, err := models.NewSchedule("wf1", "0 * * * *")
	require.NoError(t, err)
	require.NoError(t, s.repo.Save(t.Context(), stored))

	require.NoError(t, s.Start(t.Context()))
	require.NoError(t, s.Start(t.Context()))
	assert.Contains(t, s.Entries(), "wf1")

	s.Stop()
	s.Stop()
}

func TestScheduler_FireQueuesTaskForTheMinute(t *testing.T) {
	s, queue := newTestScheduler(t)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.fire(t.Context(), "wf1", at)

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, ScheduledTask("wf1", at), queue.tasks[0])
	assert.Equal(t, TaskKindScheduled, queue.tasks[0].Kind)
}
