package main

import (
	"context"
	"os"

	"github.com/durgasflow/durgasflow/pkg/cmd"
	"github.com/durgasflow/durgasflow/pkg/dispatch"
	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "durgasflow-api",
		Usage:                 "Create, run and manage workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Task queue backend (inline, gochannel, kafka)",
				Value:   "inline",
				Sources: cli.EnvVars("QUEUE_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used to deduplicate tasks of the embedded worker",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "scheduler",
				Usage:   "Fire cron schedules from this process",
				Value:   true,
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

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Durgasflow API")

			tracer, shutdown := cmd.NewTracer(ctx, command.Bool("tracing"), "durgasflow-api", logger)
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

			// gochannel queues only reach workers of this process
			queue := cmd.NewQueue(command.String("queue"), "durgasflow-api", command.String("queue") == "gochannel", logger)
			defer func() {
				if err := queue.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			engine := execution.NewEngine(persistence, registry, logger, execution.WithTracer(tracer))
			dispatcher := dispatch.NewDispatcher(engine, persistence.WorkflowRepository(), queue.Backend, logger)
			engine.SetQueue(dispatcher)

			scheduler := dispatch.NewScheduler(persistence.ScheduleRepository(), dispatcher, logger)

			if command.Bool("scheduler") {
				if err := scheduler.Start(ctx); err != nil {
					return err
				}

				defer scheduler.Stop()
			}

			if queue.Subscriber != nil {
				worker := dispatch.NewWorker("api-embedded", queue.Subscriber, dispatcher, logger,
					dispatch.WithDeduplicator(cmd.NewDeduplicator(command.String("redis-url"), logger)))

				go func() {
					if err := worker.Run(ctx); err != nil {
						logger.ErrorContext(ctx, "Embedded worker stopped", "error", err)
					}
				}()
			}

			api := NewAPI(
				logger,
				persistence,
				registry,
				engine,
				scheduler,
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return err
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
