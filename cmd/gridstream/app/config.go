package app

import (
	"flag"
	"time"

	dslog "github.com/grafana/dskit/log"

	"github.com/gridstream/gridstream/griddb"
	"github.com/gridstream/gridstream/modules/distributor"
	"github.com/gridstream/gridstream/modules/ingester"
	"github.com/gridstream/gridstream/modules/maintenance"
)

// Config is the root configuration, one section per module.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	DB          griddb.Config      `yaml:"db"`
	Distributor distributor.Config `yaml:"distributor"`
	Ingester    ingester.Config    `yaml:"ingester"`
	Maintenance maintenance.Config `yaml:"maintenance"`
}

type ServerConfig struct {
	HTTPListenAddr          string        `yaml:"http_listen_address"`
	HTTPListenPort          int           `yaml:"http_listen_port"`
	LogLevel                dslog.Level   `yaml:"log_level"`
	LogFormat               string        `yaml:"log_format"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// RegisterFlagsAndApplyDefaults registers flags and applies defaults
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Server.HTTPListenAddr, "server.http-listen-address", "", "HTTP listen address.")
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 3100, "HTTP listen port.")
	f.StringVar(&c.Server.LogFormat, "server.log-format", "logfmt", "Log format: logfmt or json.")
	c.Server.LogLevel.RegisterFlags(f)
	c.Server.GracefulShutdownTimeout = 10 * time.Second

	c.DB.RegisterFlagsAndApplyDefaults("db", f)
	c.Distributor.RegisterFlagsAndApplyDefaults("distributor", f)
	c.Ingester.RegisterFlagsAndApplyDefaults("ingester", f)
	c.Maintenance.RegisterFlagsAndApplyDefaults("maintenance", f)
}
