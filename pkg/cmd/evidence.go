package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/costdesk/costdesk/pkg/config"
	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/evidence/awsce"
)

// Sources bundles the evidence providers a desk runs against.
type Sources struct {
	Cost     evidence.CostSource
	Infra    evidence.InfraSource
	KubeCost evidence.KubeCostSource
}

// NewEvidenceSources builds the evidence providers for the configured mode.
// In aws mode the cost source goes to Cost Explorer while infra and kubecost
// stay fixture-backed; their reads degrade to no-signal when the fixture dir
// has no data, which the triage cascade tolerates.
func NewEvidenceSources(ctx context.Context, logger *slog.Logger, cfg config.Config) (Sources, error) {
	dir := cfg.Provider.FixturesDir

	sources := Sources{
		Cost:     &evidence.FixtureCost{Dir: dir},
		Infra:    &evidence.FixtureInfra{Dir: dir},
		KubeCost: &evidence.FixtureKubeCost{Dir: dir},
	}

	if cfg.Provider.Mode != config.ProviderAWS {
		return sources, nil
	}

	awsConfig, err := awsce.LoadConfig(ctx, cfg.Provider.AWSProfile)
	if err != nil {
		return Sources{}, fmt.Errorf("load AWS config: %w", err)
	}

	logger.Info("Using AWS Cost Explorer evidence", "region", awsConfig.Region)

	sources.Cost = awsce.New(*awsConfig)

	return sources, nil
}
