// Package config loads the desk configuration file shared by the CLI, the
// worker, and the API. Flags and env vars override file values; the file
// carries the settings that rarely change per invocation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/costdesk/costdesk/pkg/models"
	"github.com/costdesk/costdesk/pkg/policy"
)

// Provider modes for evidence sources.
const (
	ProviderFixture = "fixture"
	ProviderAWS     = "aws"
)

// Duration parses Go duration strings ("2h", "30m") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// PolicyConfig holds the two approval thresholds on the risk total order.
type PolicyConfig struct {
	AutoApproveMaxRisk string `yaml:"auto_approve_max_risk" validate:"omitempty,oneof=low low_medium medium high critical"`
	DenyMinRisk        string `yaml:"deny_min_risk"         validate:"omitempty,oneof=low low_medium medium high critical"`
}

// ProviderConfig selects where evidence comes from.
type ProviderConfig struct {
	Mode        string `yaml:"mode"         validate:"required,oneof=fixture aws"`
	FixturesDir string `yaml:"fixtures_dir"`
	AWSProfile  string `yaml:"aws_profile"`
}

// SweepConfig drives the scheduled detection and expiry jobs.
type SweepConfig struct {
	DetectionSchedule string `yaml:"detection_schedule"`
	ExpireSchedule    string `yaml:"expire_schedule"`
	WatchlistPath     string `yaml:"watchlist"`
}

// Config is the desk configuration file (costdesk.yaml).
type Config struct {
	LogLevel        string         `yaml:"log_level"`
	EventBus        string         `yaml:"event_bus"    validate:"omitempty,oneof=kafka memory"`
	DatabaseURL     string         `yaml:"database_url"`
	ApprovalTimeout Duration       `yaml:"approval_timeout"`
	Provider        ProviderConfig `yaml:"provider"`
	Policy          PolicyConfig   `yaml:"policy"`
	Sweep           SweepConfig    `yaml:"sweep"`
}

// Default returns the configuration used when no file is given: fixture
// evidence, in-memory event bus, file checkpoints under ./data.
func Default() Config {
	return Config{
		LogLevel:        "info",
		EventBus:        "memory",
		DatabaseURL:     "file://./data",
		ApprovalTimeout: Duration(24 * time.Hour),
		Provider: ProviderConfig{
			Mode:        ProviderFixture,
			FixturesDir: "./fixtures",
		},
		Sweep: SweepConfig{
			DetectionSchedule: "@every 1h",
			ExpireSchedule:    "@every 10m",
		},
	}
}

// Load reads and validates a desk configuration file. Fields absent from the
// file keep their defaults.
func Load(filepath string) (Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := Validate(config); err != nil {
		return Config{}, err
	}

	return config, nil
}

// LoadOrDefault loads the file when the path is non-empty, otherwise returns
// the default configuration.
func LoadOrDefault(filepath string) (Config, error) {
	if filepath == "" {
		return Default(), nil
	}

	return Load(filepath)
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func Validate(config Config) error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if config.Provider.Mode == ProviderFixture && config.Provider.FixturesDir == "" {
		return fmt.Errorf("provider.fixtures_dir is required in fixture mode")
	}

	if config.ApprovalTimeout < 0 {
		return fmt.Errorf("approval_timeout must not be negative")
	}

	return nil
}

// PolicyEngine builds the approval engine from the configured thresholds,
// keeping the defaults for any threshold left empty.
func (c Config) PolicyEngine() *policy.Engine {
	engine := policy.NewEngine()

	if c.Policy.AutoApproveMaxRisk != "" {
		engine.AutoApproveMaxRisk = models.RiskLevel(c.Policy.AutoApproveMaxRisk)
	}

	if c.Policy.DenyMinRisk != "" {
		engine.DenyMinRisk = models.RiskLevel(c.Policy.DenyMinRisk)
	}

	return engine
}
