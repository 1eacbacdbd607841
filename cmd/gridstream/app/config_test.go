package app

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.PanicOnError))

	require.Equal(t, 3100, cfg.Server.HTTPListenPort)
	require.Equal(t, 500, cfg.Ingester.FlushSize)
	require.Equal(t, 2*time.Second, cfg.Ingester.FlushInterval)
	require.Equal(t, 30*time.Second, cfg.DB.StatementTimeout)
	require.Equal(t, int32(2), cfg.DB.PoolMinConns)
	require.Equal(t, int32(10), cfg.DB.PoolMaxConns)
	require.Equal(t, int64(1<<20), cfg.Distributor.MaxBodyBytes)
	require.Equal(t, 15*time.Minute, cfg.Maintenance.RollupInterval)
}

func TestConfigFileOverlay(t *testing.T) {
	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.PanicOnError))

	file := `
server:
  http_listen_port: 8080
db:
  host: pooler.internal
  database: telemetry
  pool_max_conns: 25
ingester:
  flush_size: 1000
  flush_interval: 500ms
`
	require.NoError(t, yaml.UnmarshalStrict([]byte(file), &cfg))

	require.Equal(t, 8080, cfg.Server.HTTPListenPort)
	require.Equal(t, "pooler.internal", cfg.DB.Host)
	require.Equal(t, int32(25), cfg.DB.PoolMaxConns)
	require.Equal(t, 1000, cfg.Ingester.FlushSize)
	require.Equal(t, 500*time.Millisecond, cfg.Ingester.FlushInterval)
	// Untouched sections keep their defaults.
	require.Equal(t, 30*time.Second, cfg.DB.StatementTimeout)
}

func TestConfigFileRejectsUnknownKeys(t *testing.T) {
	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.PanicOnError))

	err := yaml.UnmarshalStrict([]byte("ingester:\n  flsh_size: 10\n"), &cfg)
	require.Error(t, err)
}
