package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/durgasflow/durgasflow/pkg/cmd"
	"github.com/durgasflow/durgasflow/pkg/dispatch"
	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "durgasflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute queued workflow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Task queue backend to consume (kafka)",
				Value:   "kafka",
				Sources: cli.EnvVars("QUEUE_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used to deduplicate tasks across workers",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Tasks processed at the same time",
				Value:   dispatch.DefaultConcurrency,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "scheduler",
				Usage:   "Fire cron schedules from this process",
				Sources: cli.EnvVars("RUN_SCHEDULER"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("durgasflow-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Durgasflow Worker")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tracer, shutdown := cmd.NewTracer(ctx, command.Bool("tracing"), "durgasflow-worker", logger)
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger)

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			queue := cmd.NewQueue(command.String("queue"), "durgasflow-worker", true, logger)
			defer func() {
				if err := queue.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			if queue.Subscriber == nil {
				return cli.Exit("the worker needs a consumable queue, got "+queue.Provider, 1)
			}

			engine := execution.NewEngine(persistence, registry, logger, execution.WithTracer(tracer))
			dispatcher := dispatch.NewDispatcher(engine, persistence.WorkflowRepository(), queue.Backend, logger)
			engine.SetQueue(dispatcher)

			if command.Bool("scheduler") {
				scheduler := dispatch.NewScheduler(persistence.ScheduleRepository(), dispatcher, logger)
				if err := scheduler.Start(ctx); err != nil {
					return err
				}

				defer scheduler.Stop()
			}

			worker := dispatch.NewWorker(workerID, queue.Subscriber, dispatcher, logger,
				dispatch.WithConcurrency(command.Int("concurrency")),
				dispatch.WithDeduplicator(cmd.NewDeduplicator(command.String("redis-url"), logger)),
			)

			return worker.Run(ctx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
