package maintenance

import (
	"flag"
	"fmt"
	"time"
)

// Config for the Maintainer.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// RollupInterval drives the hourly-stats upsert and the materialized
	// performance refresh.
	RollupInterval time.Duration `yaml:"rollup_interval"`
	// RollupLookback bounds how far back each rollup pass recomputes.
	RollupLookback time.Duration `yaml:"rollup_lookback"`

	// PartitionInterval drives partition provisioning and retention.
	PartitionInterval time.Duration `yaml:"partition_interval"`
	// PartitionsAhead is how many future months are kept provisioned.
	PartitionsAhead int `yaml:"partitions_ahead"`
	// Retention is the horizon behind which monthly partitions are dropped.
	Retention time.Duration `yaml:"retention"`
}

// RegisterFlagsAndApplyDefaults registers flags and applies defaults
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.BoolVar(&cfg.Enabled, prefix+".enabled", true, "Run scheduled maintenance (rollups, partitions, retention).")

	cfg.RollupInterval = 15 * time.Minute
	cfg.RollupLookback = 48 * time.Hour
	cfg.PartitionInterval = time.Hour
	cfg.PartitionsAhead = 2
	cfg.Retention = 6 * 30 * 24 * time.Hour
}

func (cfg *Config) validate() error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.RollupInterval <= 0 || cfg.PartitionInterval <= 0 {
		return fmt.Errorf("maintenance intervals must be positive")
	}
	if cfg.Retention <= 0 {
		return fmt.Errorf("maintenance retention must be positive")
	}
	return nil
}
