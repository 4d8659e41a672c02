// Package sweep schedules the two background jobs of a desk: re-scanning the
// watchlist for anomalies that should open runs, and expiring suspended runs
// whose approval window lapsed.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/triage"
)

// RunStarter is the slice of the workflow manager the sweeper needs.
// Satisfied by workflow.Manager.
type RunStarter interface {
	Start(ctx context.Context, tenant models.TenantContext, anomaly *models.CostAnomaly) (*models.WorkflowState, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// Entry is one watchlist line: a service/account pair with its expected and
// most recently observed daily cost.
type Entry struct {
	AnomalyID         string  `yaml:"anomaly_id"`
	Service           string  `yaml:"service"`
	AccountID         string  `yaml:"account_id"`
	Region            string  `yaml:"region"`
	Team              string  `yaml:"team"`
	ExpectedDailyCost float64 `yaml:"expected_daily_cost"`
	ActualDailyCost   float64 `yaml:"actual_daily_cost"`
	LookbackDays      int     `yaml:"lookback_days"`
}

// Anomaly converts the entry into the anomaly a run starts from. Deltas are
// derived, never stored in the watchlist.
func (e Entry) Anomaly() models.CostAnomaly {
	anomaly := models.NewCostAnomaly(e.Service, e.AccountID)

	if e.AnomalyID != "" {
		anomaly.AnomalyID = e.AnomalyID
	}

	if e.LookbackDays > 0 {
		anomaly.LookbackDays = e.LookbackDays
	}

	anomaly.Region = e.Region
	anomaly.Team = e.Team
	anomaly.ExpectedDailyCost = e.ExpectedDailyCost
	anomaly.ActualDailyCost = e.ActualDailyCost
	anomaly.DeltaDollars = e.ActualDailyCost - e.ExpectedDailyCost
	anomaly.DeltaPercent = triage.PctChange(e.ActualDailyCost, e.ExpectedDailyCost) * 100

	return anomaly
}

// LoadWatchlist reads the watchlist YAML file.
func LoadWatchlist(filepath string) ([]Entry, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist %s: %w", filepath, err)
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist: %w", err)
	}

	return entries, nil
}

// Sweeper runs the detection and expiry jobs on cron schedules.
type Sweeper struct {
	manager       RunStarter
	tenant        models.TenantContext
	watchlistPath string
	minDelta      float64
	logger        *slog.Logger

	cron *cron.Cron

	mu         sync.Mutex
	dispatched map[string]bool
}

// New creates a Sweeper. minDelta is the smallest positive daily-cost delta
// that opens a run; entries below it are skipped.
func New(manager RunStarter, tenant models.TenantContext, watchlistPath string, minDelta float64, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		manager:       manager,
		tenant:        tenant,
		watchlistPath: watchlistPath,
		minDelta:      minDelta,
		logger:        logger.With("module", "sweep"),
		dispatched:    make(map[string]bool),
	}
}

// RunDetection re-reads the watchlist and starts a run for every anomalous
// entry not already dispatched. It returns the number of runs started.
func (s *Sweeper) RunDetection(ctx context.Context) (int, error) {
	entries, err := LoadWatchlist(s.watchlistPath)
	if err != nil {
		return 0, err
	}

	started := 0

	for _, entry := range entries {
		anomaly := entry.Anomaly()

		if anomaly.DeltaDollars < s.minDelta {
			continue
		}

		s.mu.Lock()
		seen := s.dispatched[anomaly.AnomalyID]
		s.mu.Unlock()

		if seen {
			continue
		}

		state, err := s.manager.Start(ctx, s.tenant, &anomaly)
		if err != nil {
			return started, fmt.Errorf("start run for anomaly %s: %w", anomaly.AnomalyID, err)
		}

		// Marked only after a successful start, so a failed start is
		// retried by the next sweep.
		s.mu.Lock()
		s.dispatched[anomaly.AnomalyID] = true
		s.mu.Unlock()

		s.logger.Info("Detection sweep started run",
			"anomaly_id", anomaly.AnomalyID,
			"workflow_id", state.WorkflowID,
			"delta_dollars", anomaly.DeltaDollars)

		started++
	}

	return started, nil
}

// RunExpiry times out overdue suspended runs.
func (s *Sweeper) RunExpiry(ctx context.Context) (int, error) {
	expired, err := s.manager.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		s.logger.Info("Expiry sweep timed out runs", "expired", expired)
	}

	return expired, nil
}

// Start registers both jobs with the given cron schedules and starts the
// scheduler. Sweep failures are logged, never fatal.
func (s *Sweeper) Start(ctx context.Context, detectionSchedule, expireSchedule string) error {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(detectionSchedule, func() {
		if _, err := s.RunDetection(ctx); err != nil {
			s.logger.Error("Detection sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid detection schedule %q: %w", detectionSchedule, err)
	}

	if _, err := s.cron.AddFunc(expireSchedule, func() {
		if _, err := s.RunExpiry(ctx); err != nil {
			s.logger.Error("Expiry sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid expire schedule %q: %w", expireSchedule, err)
	}

	s.cron.Start()

	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
