package ingester

import (
	"flag"
	"fmt"
	"time"
)

// Config for an Ingester.
type Config struct {
	// FlushSize schedules a flush of a class as soon as its buffer holds
	// this many records.
	FlushSize int `yaml:"flush_size"`

	// FlushInterval flushes both classes regardless of depth. A single
	// shared ticker drives both.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RegisterFlagsAndApplyDefaults registers flags and applies defaults
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.FlushSize, prefix+".flush-size", 500, "Records per class that trigger a flush.")
	f.DurationVar(&cfg.FlushInterval, prefix+".flush-interval", 2*time.Second, "Interval at which both classes are flushed.")
}

func (cfg *Config) validate() error {
	if cfg.FlushSize <= 0 {
		return fmt.Errorf("ingester flush_size must be positive")
	}
	if cfg.FlushInterval <= 0 {
		return fmt.Errorf("ingester flush_interval must be positive")
	}
	return nil
}
