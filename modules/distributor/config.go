package distributor

import "flag"

// Config for a Distributor.
type Config struct {
	// MaxBodyBytes caps the ingest request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// RegisterFlagsAndApplyDefaults registers flags and applies defaults
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.Int64Var(&cfg.MaxBodyBytes, prefix+".max-body-bytes", 1<<20, "Maximum ingest payload size in bytes.")
}
