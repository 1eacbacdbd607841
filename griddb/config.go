package griddb

import (
	"flag"
	"fmt"
	"time"
)

// Config describes how to reach Postgres. Connections go through an
// external transaction-mode pooler, so nothing here may assume
// connection-local state survives across transactions.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	StatementTimeout time.Duration `yaml:"statement_timeout"`
	PoolMinConns     int32         `yaml:"pool_min_conns"`
	PoolMaxConns     int32         `yaml:"pool_max_conns"`

	// CreateSchema runs the embedded DDL at startup. Meant for dev and
	// tests; production schemas are managed by migration tooling.
	CreateSchema bool `yaml:"create_schema"`
}

// RegisterFlagsAndApplyDefaults registers flags and applies defaults
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Host, prefix+".host", "localhost", "Postgres host (or pooler in front of it).")
	f.IntVar(&cfg.Port, prefix+".port", 5432, "Postgres port.")
	f.StringVar(&cfg.User, prefix+".user", "gridstream", "Postgres user.")
	f.StringVar(&cfg.Password, prefix+".password", "", "Postgres password.")
	f.StringVar(&cfg.Database, prefix+".database", "gridstream", "Postgres database name.")
	f.StringVar(&cfg.SSLMode, prefix+".ssl-mode", "disable", "Postgres sslmode parameter.")
	f.BoolVar(&cfg.CreateSchema, prefix+".create-schema", false, "Create tables, partitions and indexes at startup.")

	cfg.StatementTimeout = 30 * time.Second
	cfg.PoolMinConns = 2
	cfg.PoolMaxConns = 10
}

func (cfg *Config) connString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

func (cfg *Config) validate() error {
	if cfg.Host == "" || cfg.Database == "" || cfg.User == "" {
		return fmt.Errorf("db host, user and database are required")
	}
	if cfg.StatementTimeout <= 0 {
		return fmt.Errorf("db statement_timeout must be positive")
	}
	if cfg.PoolMaxConns < cfg.PoolMinConns || cfg.PoolMaxConns <= 0 {
		return fmt.Errorf("db pool bounds invalid: min=%d max=%d", cfg.PoolMinConns, cfg.PoolMaxConns)
	}
	return nil
}
