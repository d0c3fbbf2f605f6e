package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (h *countingHandler) HandleTask(_ context.Context, task Task) (TaskResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.tasks = append(h.tasks, task)

	return TaskResult{Status: TaskStatusSuccess}, h.err
}

func (h *countingHandler) handled() []Task {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]Task(nil), h.tasks...)
}

type failingDeduplicator struct{}

func (failingDeduplicator) Claim(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func taskMessage(t *testing.T, task Task) *message.Message {
	t.Helper()

	payload, err := task.Marshal()
	require.NoError(t, err)

	return message.NewMessage(task.Name, payload)
}

func acked(t *testing.T, msg *message.Message) {
	t.Helper()

	select {
	case <-msg.Acked():
	case <-time.After(time.Second):
		t.Fatal("message was not acked")
	}
}

func TestWorker_ProcessSkipsClaimedTasks(t *testing.T) {
	handler := &countingHandler{}
	w := NewWorker("w1", nil, handler, slog.Default(), WithDeduplicator(NewMemoryDeduplicator(time.Minute)))

	task := ExecutionTask("e1")

	for range 2 {
		msg := taskMessage(t, task)
		w.process(t.Context(), msg)
		acked(t, msg)
	}

	assert.Equal(t, []Task{task}, handler.handled())
}

func TestWorker_ProcessRunsWhenClaimFails(t *testing.T) {
	handler := &countingHandler{}
	w := NewWorker("w1", nil, handler, slog.Default(), WithDeduplicator(failingDeduplicator{}))

	msg := taskMessage(t, ExecutionTask("e1"))
	w.process(t.Context(), msg)

	acked(t, msg)
	assert.Len(t, handler.handled(), 1)
}

func TestWorker_ProcessAcksBadAndFailedTasks(t *testing.T) {
	handler := &countingHandler{err: errors.New("boom")}
	w := NewWorker("w1", nil, handler, slog.Default())

	malformed := message.NewMessage("bad", []byte("{not json"))
	w.process(t.Context(), malformed)
	acked(t, malformed)

	unnamed := message.NewMessage("unnamed", []byte(`{"kind":"execution"}`))
	w.process(t.Context(), unnamed)
	acked(t, unnamed)

	failed := taskMessage(t, ExecutionTask("e2"))
	w.process(t.Context(), failed)
	acked(t, failed)

	assert.Len(t, handler.handled(), 1)
}

func TestNewWorker_Options(t *testing.T) {
	w := NewWorker("w1", nil, &countingHandler{}, slog.Default(), WithConcurrency(0))
	assert.Equal(t, DefaultConcurrency, w.concurrency)

	w = NewWorker("w1", nil, &countingHandler{}, slog.Default(), WithConcurrency(8))
	assert.Equal(t, 8, w.concurrency)
	assert.Nil(t, w.dedup)
}
