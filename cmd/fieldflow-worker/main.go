// Package main provides the worker daemon that executes workflows in
// response to record events.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/fieldflow/fieldflow/pkg/cmd"
	"github.com/fieldflow/fieldflow/pkg/events"
	"github.com/fieldflow/fieldflow/pkg/log"
	"github.com/fieldflow/fieldflow/pkg/otelhelper"
	"github.com/fieldflow/fieldflow/pkg/persistence/redis"
)

func main() {
	command := &cli.Command{
		Name:                  "fieldflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes workflows on record events",
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
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Optional Redis URL for shared run history and counters",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("fieldflow-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing worker")

			registry := cmd.NewRegistry(logger)

			recordBus := cmd.NewEventBus(events.RecordEventsTopic, command.String("event-bus"), "fieldflow-worker", logger)
			defer func() {
				if err := recordBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close record event bus", "error", err)
				}
			}()

			runBus := cmd.NewEventBus(events.RunEventsTopic, command.String("event-bus"), "fieldflow-worker", logger)
			defer func() {
				if err := runBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close run event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			if redisURL := command.String("redis-url"); redisURL != "" {
				store, err := redis.NewStoreFromURL(ctx, logger, redisURL)
				if err != nil {
					return err
				}

				defer func() {
					if err := store.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close Redis store", "error", err)
					}
				}()

				persistence = cmd.WithRunStore(persistence, store, store)
			}

			tracer, err := otelhelper.NewTracer(ctx, "fieldflow-worker")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)
			}

			worker := NewWorkerManager(workerID, persistence, registry, recordBus, runBus, logger)
			worker.tracer = tracer

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
