package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

func loadFixture(dir, name string, target any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", name, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse fixture %s: %w", name, err)
	}

	return nil
}

// FixtureCost is a CostSource backed by JSON files in a directory. It serves
// tests and local runs where no billing backend is reachable.
type FixtureCost struct {
	Dir string
}

func (f *FixtureCost) CostTimeseries(_ context.Context, _, _, _, _ string) (CostTimeseries, error) {
	var ts CostTimeseries
	err := loadFixture(f.Dir, "cost_timeseries.json", &ts)

	return ts, err
}

func (f *FixtureCost) CURLineItems(_ context.Context, _, _, _, _ string) ([]CURLineItem, error) {
	var items []CURLineItem
	err := loadFixture(f.Dir, "cur_line_items.json", &items)

	return items, err
}

func (f *FixtureCost) RICoverage(_ context.Context, _, _, _ string) (Coverage, error) {
	var c Coverage
	err := loadFixture(f.Dir, "ri_coverage.json", &c)

	return c, err
}

func (f *FixtureCost) RIUtilization(_ context.Context, _, _, _ string) (Utilization, error) {
	var u Utilization
	err := loadFixture(f.Dir, "ri_utilization.json", &u)

	return u, err
}

func (f *FixtureCost) SPCoverage(_ context.Context, _, _, _ string) (Coverage, error) {
	var c Coverage
	err := loadFixture(f.Dir, "sp_coverage.json", &c)

	return c, err
}

func (f *FixtureCost) SPUtilization(_ context.Context, _, _, _ string) (Utilization, error) {
	var u Utilization
	err := loadFixture(f.Dir, "sp_utilization.json", &u)

	return u, err
}

// FixtureInfra is an InfraSource backed by JSON files in a directory.
type FixtureInfra struct {
	Dir string
}

func (f *FixtureInfra) RecentDeploys(_ context.Context, _ string) ([]Deploy, error) {
	var deploys []Deploy
	err := loadFixture(f.Dir, "deploys.json", &deploys)

	return deploys, err
}

func (f *FixtureInfra) Metrics(_ context.Context, _, _, _ string) (MetricWindow, error) {
	var w MetricWindow
	err := loadFixture(f.Dir, "cloudwatch_metrics.json", &w)

	return w, err
}

func (f *FixtureInfra) ResourceTags(_ context.Context, _ string) (map[string]string, error) {
	var tags map[string]string
	err := loadFixture(f.Dir, "resource_tags.json", &tags)

	return tags, err
}

// ServiceHealth reads service_health.json; a missing file means healthy,
// so fixture sets written before health checks existed keep working.
func (f *FixtureInfra) ServiceHealth(_ context.Context, _ string) (ServiceHealth, error) {
	var h ServiceHealth
	if err := loadFixture(f.Dir, "service_health.json", &h); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ServiceHealth{OK: true, Details: "fixture: ok"}, nil
		}

		return ServiceHealth{}, err
	}

	return h, nil
}

// FixtureKubeCost is a KubeCostSource backed by JSON files in a directory.
type FixtureKubeCost struct {
	Dir string
}

func (f *FixtureKubeCost) Allocation(_ context.Context, _, _ string) (Allocation, error) {
	var a Allocation
	err := loadFixture(f.Dir, "kubecost_allocation.json", &a)

	return a, err
}
