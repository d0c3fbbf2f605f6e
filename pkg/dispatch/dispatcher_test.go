package dispatch_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/durgasflow/durgasflow/pkg/channels/gochannel"
	"github.com/durgasflow/durgasflow/pkg/dispatch"
	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/durgasflow/durgasflow/pkg/persistence/file"
	"github.com/durgasflow/durgasflow/pkg/registry"
	"github.com/durgasflow/durgasflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	persistence persistence.Persistence
	engine      *execution.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes()

	p := file.NewPersistence(t.TempDir())

	return &fixture{
		persistence: p,
		engine:      execution.NewEngine(p, reg, slog.Default()),
	}
}

func (f *fixture) saveWorkflow(t *testing.T, active bool) *models.Workflow {
	t.Helper()

	nodes := []*models.WorkflowNode{
		testutil.CreateTestNode("t1", testutil.WithTriggerNode()),
		testutil.CreateTestNode("log1"),
	}
	wf := testutil.CreateTestWorkflow(nodes, []*models.Connection{testutil.CreateTestConnection("t1", "log1")})
	wf.IsActive = active
	require.NoError(t, f.persistence.WorkflowRepository().Save(t.Context(), wf))

	return wf
}

func TestDispatcher_InlineBackendRunsImmediately(t *testing.T) {
	f := newFixture(t)
	wf := f.saveWorkflow(t, true)

	d := dispatch.NewDispatcher(f.engine, f.persistence.WorkflowRepository(), dispatch.NewInlineBackend(slog.Default()), slog.Default())
	f.engine.SetQueue(d)

	exec, err := f.engine.ExecuteWorkflow(t.Context(), execution.ExecuteRequest{
		Workflow: wf,
		Async:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, exec.Status)
}

func TestDispatcher_RunExecutionTask(t *testing.T) {
	f := newFixture(t)
	wf := f.saveWorkflow(t, true)

	d := dispatch.NewDispatcher(f.engine, f.persistence.WorkflowRepository(), dispatch.NewInlineBackend(slog.Default()), slog.Default())

	exec := models.NewExecution("e1", wf.ID, models.TriggerTypeManual, nil, "")
	require.NoError(t, f.persistence.ExecutionRepository().Create(t.Context(), exec))

	result, err := d.HandleTask(t.Context(), dispatch.ExecutionTask("e1"))
	require.NoError(t, err)
	assert.Equal(t, dispatch.TaskResult{
		Status:       dispatch.TaskStatusSuccess,
		ExecutionID:  "e1",
		ResultStatus: string(models.ExecutionStatusCompleted),
	}, result)

	// delivered again, nothing reruns
	again, err := d.RunExecutionTask(t.Context(), "e1")
	require.NoError(t, err)
	assert.Equal(t, result, again)

	missing, err := d.RunExecutionTask(t.Context(), "missing")
	require.Error(t, err)
	assert.Equal(t, dispatch.TaskStatusError, missing.Status)
}

func TestDispatcher_ScheduledRun(t *testing.T) {
	f := newFixture(t)
	active := f.saveWorkflow(t, true)

	d := dispatch.NewDispatcher(f.engine, f.persistence.WorkflowRepository(), dispatch.NewInlineBackend(slog.Default()), slog.Default())

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	result, err := d.HandleTask(t.Context(), dispatch.ScheduledTask(active.ID, at))
	require.NoError(t, err)
	assert.Equal(t, dispatch.TaskStatusSuccess, result.Status)
	assert.Equal(t, string(models.ExecutionStatusCompleted), result.ResultStatus)

	exec, err := f.persistence.ExecutionRepository().GetByID(t.Context(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerTypeSchedule, exec.TriggerType)
	assert.Equal(t, true, exec.TriggerData["scheduled"])
	assert.Equal(t, "2026-03-01T09:30:00Z", exec.TriggerData["scheduled_at"])
}

func TestDispatcher_ScheduledRunSkipsUnavailableWorkflows(t *testing.T) {
	f := newFixture(t)
	inactive := f.saveWorkflow(t, false)

	d := dispatch.NewDispatcher(f.engine, f.persistence.WorkflowRepository(), dispatch.NewInlineBackend(slog.Default()), slog.Default())

	for _, workflowID := range []string{inactive.ID, "deleted"} {
		result, err := d.RunScheduledWorkflowTask(t.Context(), dispatch.ScheduledTask(workflowID, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, dispatch.TaskStatusSkipped, result.Status)
		assert.Equal(t, "Workflow not found or inactive", result.Message)
	}

	runs, err := f.persistence.ExecutionRepository().List(t.Context(), persistence.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWorker_RunsQueuedExecutions(t *testing.T) {
	f := newFixture(t)
	wf := f.saveWorkflow(t, true)

	pub, sub := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))

	d := dispatch.NewDispatcher(f.engine, f.persistence.WorkflowRepository(), dispatch.NewWatermillBackend(pub), slog.Default())
	f.engine.SetQueue(d)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	worker := dispatch.NewWorker("worker-test", sub, d, slog.Default(),
		dispatch.WithConcurrency(2),
		dispatch.WithDeduplicator(dispatch.NewMemoryDeduplicator(time.Minute)))

	stopped := make(chan error, 1)

	go func() { stopped <- worker.Run(ctx) }()

	exec, err := f.engine.ExecuteWorkflow(t.Context(), execution.ExecuteRequest{Workflow: wf, Async: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := f.persistence.ExecutionRepository().GetByID(t.Context(), exec.ID)

		return err == nil && stored.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-stopped)
	require.NoError(t, pub.Close())
}
