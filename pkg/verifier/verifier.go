// Package verifier performs the post-execution outcome check: did the spend
// actually come down, and is the service still healthy.
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/costdesk/costdesk/pkg/evidence"
	"github.com/costdesk/costdesk/pkg/models"
)

// Verify checks service health and observed cost reduction for the window
// after execution, then recommends a follow-up:
//
//   - unhealthy service -> rollback, regardless of savings
//   - observed savings  -> close
//   - otherwise         -> monitor
func Verify(
	ctx context.Context,
	service, accountID string,
	cost evidence.CostSource,
	infra evidence.InfraSource,
	windowStart, windowEnd string,
) (models.VerificationResult, error) {
	now := time.Now().UTC()

	health, err := infra.ServiceHealth(ctx, service)
	if err != nil {
		return models.VerificationResult{}, fmt.Errorf("verifier: service health: %w", err)
	}

	if !health.OK {
		return models.VerificationResult{
			VerifiedAt:            now,
			CostReductionObserved: false,
			ServiceHealthOK:       false,
			HealthCheckDetails:    health.Details,
			Recommendation:        models.RecommendRollback,
		}, nil
	}

	ts, err := cost.CostTimeseries(ctx, service, accountID, windowStart, windowEnd)
	if err != nil {
		return models.VerificationResult{}, fmt.Errorf("verifier: get cost timeseries: %w", err)
	}

	if ts.ObservedSavingsDaily > 0 {
		return models.VerificationResult{
			VerifiedAt:            now,
			CostReductionObserved: true,
			ObservedSavingsDaily:  ts.ObservedSavingsDaily,
			ServiceHealthOK:       true,
			HealthCheckDetails:    health.Details,
			Recommendation:        models.RecommendClose,
		}, nil
	}

	return models.VerificationResult{
		VerifiedAt:         now,
		ServiceHealthOK:    true,
		HealthCheckDetails: health.Details,
		Recommendation:     models.RecommendMonitor,
	}, nil
}
