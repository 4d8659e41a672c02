// Package main provides the costdesk worker: it resumes suspended runs when
// approval decisions arrive on the bus and runs the scheduled sweeps.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/costdesk/costdesk/pkg/cmd"
	"github.com/costdesk/costdesk/pkg/config"
	"github.com/costdesk/costdesk/pkg/log"
	"github.com/costdesk/costdesk/pkg/otelhelper"
	"github.com/costdesk/costdesk/pkg/workflow"
)

func main() {
	root := &cli.Command{
		Name:                  "costdesk-worker",
		EnableShellCompletion: true,
		Usage:                 "Resume suspended runs on approval decisions and run the sweeps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the desk configuration file",
				Sources: cli.EnvVars("COSTDESK_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Checkpoint store URL (file://, redis://, postgres://)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory)",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("costdesk-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing costdesk worker")

			cfg, err := config.LoadOrDefault(command.String("config"))
			if err != nil {
				return err
			}

			if url := command.String("database-url"); url != "" {
				cfg.DatabaseURL = url
			}

			if provider := command.String("event-bus"); provider != "" {
				cfg.EventBus = provider
			}

			eventBus := cmd.NewEventBus(cfg.EventBus, logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store, err := cmd.NewCheckpointStore(ctx, logger, cfg.DatabaseURL)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close checkpoint store", "error", err)
				}
			}()

			sources, err := cmd.NewEvidenceSources(ctx, logger, cfg)
			if err != nil {
				return err
			}

			manager := workflow.NewManager(store, eventBus, cmd.NewStages(logger, cfg, sources),
				logger, cfg.ApprovalTimeout.Std())

			tracer, err := otelhelper.NewTracer(ctx, "costdesk-worker")
			if err != nil {
				return err
			}

			worker := NewWorker(workerID, manager, eventBus, cfg, logger, tracer)

			return worker.Start(ctx)
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
