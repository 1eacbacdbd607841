package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/drone/envsubst"
	"github.com/go-kit/log/level"
	"gopkg.in/yaml.v2"

	"github.com/gridstream/gridstream/cmd/gridstream/app"
	"github.com/gridstream/gridstream/pkg/util/log"
)

const appName = "gridstream"

func main() {
	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}

	logger := log.InitLogger(config.Server.LogFormat, config.Server.LogLevel)

	a, err := app.New(*config, logger)
	if err != nil {
		level.Error(logger).Log("msg", "error initialising "+appName, "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "starting "+appName)
	if err := a.Run(); err != nil {
		level.Error(logger).Log("msg", "error running "+appName, "err", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, an optional YAML file (with ${ENV} expansion
// so keys like BUFFER_FLUSH_SIZE can come from the environment) and
// command-line flags, in that order.
func loadConfig() (*app.Config, error) {
	const (
		configFileOption      = "config.file"
		configExpandEnvOption = "config.expand-env"
	)

	var (
		configFile      string
		configExpandEnv bool
	)

	args := os.Args[1:]
	config := &app.Config{}

	// Find -config.file and -config.expand-env before the main parse.
	// Parsing stops on the first unknown flag, so retry from each arg.
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, configFileOption, "", "")
	fs.BoolVar(&configExpandEnv, configExpandEnvOption, false, "")
	for len(args) > 0 {
		_ = fs.Parse(args)
		args = args[1:]
	}

	config.RegisterFlagsAndApplyDefaults("", flag.CommandLine)
	flag.StringVar(&configFile, configFileOption, "", "Configuration file to load.")
	flag.BoolVar(&configExpandEnv, configExpandEnvOption, false, "Expand ${var} in the config file from the environment.")

	if configFile != "" {
		buff, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}

		if configExpandEnv {
			s, err := envsubst.EvalEnv(string(buff))
			if err != nil {
				return nil, fmt.Errorf("failed to expand env vars in %s: %w", configFile, err)
			}
			buff = []byte(s)
		}

		if err := yaml.UnmarshalStrict(buff, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	// Flags win over the file.
	flag.Parse()

	return config, nil
}
