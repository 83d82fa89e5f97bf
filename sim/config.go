package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the per-run simulation parameters. All partitions of one
// run must use the identical config; determinism depends on it.
type Config struct {
	// StartTime and EndTime bound the simulated ticks, inclusive.
	StartTime uint32 `yaml:"startTime"`
	EndTime   uint32 `yaml:"endTime"`
	// SampleSize scales flow and storage capacities for downsampled
	// populations, e.g. 0.1 for a 10% sample.
	SampleSize float64 `yaml:"sampleSize"`
	// Seed is the master seed every partition derives its RNG from.
	Seed int64 `yaml:"seed"`
	// Partitions is the number of processes the network is split into.
	Partitions int `yaml:"partitions"`
	// StrictChecks enables per-tick occupancy invariant checks.
	StrictChecks bool `yaml:"strictChecks"`

	NetworkFile  string `yaml:"networkFile"`
	PlansFile    string `yaml:"plansFile"`
	VehiclesFile string `yaml:"vehiclesFile"`
	OutputDir    string `yaml:"outputDir"`
}

// DefaultConfig returns a config with the conventional defaults; callers
// overwrite what their scenario needs.
func DefaultConfig() *Config {
	return &Config{
		StartTime:  0,
		EndTime:    86400,
		SampleSize: 1.0,
		Seed:       4711,
		Partitions: 1,
		OutputDir:  "output",
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configs that cannot produce a meaningful run.
func (c *Config) Validate() error {
	if c.EndTime < c.StartTime {
		return fmt.Errorf("config: endTime %d before startTime %d", c.EndTime, c.StartTime)
	}
	if c.SampleSize <= 0 || c.SampleSize > 1 {
		return fmt.Errorf("config: sampleSize must be in (0,1], got %v", c.SampleSize)
	}
	if c.Partitions < 1 {
		return fmt.Errorf("config: partitions must be at least 1, got %d", c.Partitions)
	}
	return nil
}
