package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/costdesk/costdesk/pkg/cmd"
	"github.com/costdesk/costdesk/pkg/config"
	"github.com/costdesk/costdesk/pkg/log"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/workflow"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	root := &cli.Command{
		Name:                  "costdesk-api",
		Usage:                 "Serve the remediation run API",
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
				Name:    "tenant",
				Usage:   "Tenant served by this API instance",
				Value:   "default",
				Sources: cli.EnvVars("COSTDESK_TENANT"),
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

			logger.InfoContext(ctx, "Initializing costdesk API")

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

			api := NewAPI(logger, manager, store, models.NewTenantContext(command.String("tenant")))

			return api.Start(command.Int("port"))
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
