package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
)

// TaskHandler executes tasks.
type TaskHandler interface {
	HandleTask(ctx context.Context, task Task) (TaskResult, error)
}

// Backend is where queued tasks go.
type Backend interface {
	Enqueue(ctx context.Context, task Task) error
	Close() error
}

// InlineBackend runs every task immediately in the caller's goroutine. It is
// the strategy used when no queue is configured.
type InlineBackend struct {
	handler TaskHandler
	logger  *slog.Logger
}

func NewInlineBackend(logger *slog.Logger) *InlineBackend {
	return &InlineBackend{logger: logger.With("module", "inline_backend")}
}

// Bind sets the handler tasks are run with.
func (b *InlineBackend) Bind(handler TaskHandler) {
	b.handler = handler
}

func (b *InlineBackend) Enqueue(ctx context.Context, task Task) error {
	if b.handler == nil {
		return fmt.Errorf("inline backend has no task handler")
	}

	result, err := b.handler.HandleTask(ctx, task)
	if err != nil {
		return err
	}

	b.logger.DebugContext(ctx, "Task ran inline", "task", task.Name, "status", result.Status)

	return nil
}

func (b *InlineBackend) Close() error { return nil }

// WatermillBackend publishes tasks for workers to consume.
type WatermillBackend struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillBackend(publisher message.Publisher) *WatermillBackend {
	return &WatermillBackend{publisher: publisher, topic: TasksTopic}
}

func (b *WatermillBackend) Enqueue(ctx context.Context, task Task) error {
	payload, err := task.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.Name, err)
	}

	msg := message.NewMessage(task.Name, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("task_name", task.Name)
	msg.Metadata.Set("task_group", task.Group)
	msg.Metadata.Set("task_kind", string(task.Kind))

	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("failed to publish task %s: %w", task.Name, err)
	}

	return nil
}

func (b *WatermillBackend) Close() error {
	return b.publisher.Close()
}
