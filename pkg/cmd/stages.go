package cmd

import (
	"log/slog"

	"github.com/costdesk/costdesk/pkg/analysis"
	"github.com/costdesk/costdesk/pkg/config"
	"github.com/costdesk/costdesk/pkg/executor"
	"github.com/costdesk/costdesk/pkg/triage"
	"github.com/costdesk/costdesk/pkg/workflow"
)

// NewStages wires the graph stages from the configured evidence sources and
// policy thresholds.
func NewStages(logger *slog.Logger, cfg config.Config, sources Sources) *workflow.Stages {
	return &workflow.Stages{
		Classifier: triage.NewClassifier(sources.Cost, sources.Infra, sources.KubeCost, logger),
		Planner:    analysis.NewPlanner(sources.Cost),
		Executor:   executor.New(sources.Infra, logger),
		Policy:     cfg.PolicyEngine(),
		Cost:       sources.Cost,
		Infra:      sources.Infra,
	}
}
