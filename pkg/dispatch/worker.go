package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// DefaultConcurrency is the number of tasks a worker runs at once.
const DefaultConcurrency = 4

// Worker consumes tasks from a subscriber and runs them with a TaskHandler.
type Worker struct {
	id          string
	subscriber  message.Subscriber
	handler     TaskHandler
	dedup       Deduplicator
	concurrency int
	logger      *slog.Logger
}

type WorkerOption func(*Worker)

// WithDeduplicator makes the worker skip task names another worker already
// claimed.
func WithDeduplicator(d Deduplicator) WorkerOption {
	return func(w *Worker) {
		w.dedup = d
	}
}

func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func NewWorker(id string, subscriber message.Subscriber, handler TaskHandler, logger *slog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		id:          id,
		subscriber:  subscriber,
		handler:     handler,
		concurrency: DefaultConcurrency,
		logger:      logger.With("module", "worker", "worker_id", id),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run consumes tasks until ctx is done and waits for tasks in flight.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, TasksTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TasksTopic, err)
	}

	w.logger.InfoContext(ctx, "Worker started", "concurrency", w.concurrency)

	var wg sync.WaitGroup

	slots := make(chan struct{}, w.concurrency)

	for msg := range messages {
		slots <- struct{}{}

		wg.Add(1)

		go func() {
			defer func() {
				<-slots
				wg.Done()
			}()

			w.process(ctx, msg)
		}()
	}

	wg.Wait()

	w.logger.InfoContext(ctx, "Worker stopped")

	return nil
}

// process always acks: failures are recorded on the execution and a redelivery
// would not change the outcome.
func (w *Worker) process(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	task, err := UnmarshalTask(msg.Payload)
	if err != nil {
		w.logger.ErrorContext(ctx, "Dropping malformed task", "message_id", msg.UUID, "error", err)

		return
	}

	logger := w.logger.With("task", task.Name, "kind", task.Kind)

	if w.dedup != nil {
		claimed, err := w.dedup.Claim(ctx, task.Name)
		if err != nil {
			logger.WarnContext(ctx, "Task claim failed, running anyway", "error", err)
		} else if !claimed {
			logger.InfoContext(ctx, "Task already claimed, skipping")

			return
		}
	}

	result, err := w.handler.HandleTask(ctx, task)
	if err != nil {
		logger.ErrorContext(ctx, "Task failed", "error", err)

		return
	}

	logger.InfoContext(ctx, "Task finished",
		"status", result.Status, "execution_id", result.ExecutionID, "result_status", result.ResultStatus)
}
