// Package main provides the one-shot costdesk CLI: open a run for an anomaly
// or decide a suspended one, printing the final state as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/costdesk/costdesk/pkg/cmd"
	"github.com/costdesk/costdesk/pkg/config"
	"github.com/costdesk/costdesk/pkg/log"
	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/workflow"
)

func main() {
	root := &cli.Command{
		Name:                  "costdesk",
		Usage:                 "Run cloud-cost anomaly remediation workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			resumeCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, command *cli.Command) (*workflow.Manager, error) {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("costdesk")

	cfg, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return nil, err
	}

	databaseURL := cfg.DatabaseURL
	if url := command.String("database-url"); url != "" {
		databaseURL = url
	}

	sources, err := cmd.NewEvidenceSources(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	store, err := cmd.NewCheckpointStore(ctx, logger, databaseURL)
	if err != nil {
		return nil, err
	}

	stages := cmd.NewStages(logger, cfg, sources)

	return workflow.NewManager(store, nil, stages, logger, cfg.ApprovalTimeout.Std()), nil
}

func printState(state *models.WorkflowState) error {
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	return nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Open a remediation run for a detected anomaly",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Value: "default", Usage: "Tenant the run belongs to"},
			&cli.StringFlag{Name: "service", Required: true, Usage: "Cloud service name (e.g. EC2)"},
			&cli.StringFlag{Name: "account-id", Required: true, Usage: "Cloud account ID"},
			&cli.StringFlag{Name: "region", Usage: "Cloud region"},
			&cli.FloatFlag{Name: "expected-daily-cost", Usage: "Expected daily cost in dollars"},
			&cli.FloatFlag{Name: "actual-daily-cost", Usage: "Observed daily cost in dollars"},
			&cli.IntFlag{Name: "lookback-days", Value: 30, Usage: "Evidence window length in days"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			manager, err := setup(ctx, command)
			if err != nil {
				return err
			}

			anomaly := models.NewCostAnomaly(command.String("service"), command.String("account-id"))
			anomaly.Region = command.String("region")
			anomaly.ExpectedDailyCost = command.Float("expected-daily-cost")
			anomaly.ActualDailyCost = command.Float("actual-daily-cost")
			anomaly.DeltaDollars = anomaly.ActualDailyCost - anomaly.ExpectedDailyCost
			anomaly.LookbackDays = command.Int("lookback-days")

			if anomaly.ExpectedDailyCost > 0 {
				anomaly.DeltaPercent = anomaly.DeltaDollars / anomaly.ExpectedDailyCost * 100
			}

			state, err := manager.Start(ctx, models.NewTenantContext(command.String("tenant")), &anomaly)
			if err != nil {
				return err
			}

			return printState(state)
		},
	}
}

func resumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Decide a suspended run",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workflow-id", Required: true, Usage: "Run to decide"},
			&cli.BoolFlag{Name: "approve", Usage: "Approve instead of deny"},
			&cli.StringFlag{Name: "by", Required: true, Usage: "Identity of the decider"},
			&cli.StringFlag{Name: "note", Usage: "Optional decision note"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			manager, err := setup(ctx, command)
			if err != nil {
				return err
			}

			state, err := manager.Resume(ctx, command.String("workflow-id"), workflow.Decision{
				Approve: command.Bool("approve"),
				By:      command.String("by"),
				Note:    command.String("note"),
			})
			if err != nil {
				return err
			}

			return printState(state)
		},
	}
}
