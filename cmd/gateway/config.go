package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/DeBrosOfficial/firehose/pkg/config"
)

type flags struct {
	configPath string
	envFiles   string
	listenAddr string
	brokerURL  string
	driver     string
	logLevel   string
	logFormat  string
	noColor    bool
}

// parseFlags reads the command line. Flags left empty do not override the
// file or environment.
func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to config YAML file (default ./gateway.yaml or ~/.firehose/gateway.yaml)")
	fs.StringVar(&f.envFiles, "env-file", ".env", "Comma-separated dotenv files to load before reading the environment")
	fs.StringVar(&f.listenAddr, "addr", "", "HTTP listen address (e.g., :8080)")
	fs.StringVar(&f.brokerURL, "broker-url", "", "AMQP broker URL")
	fs.StringVar(&f.driver, "driver", "", "Broker driver: amqp or memory")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: console or json")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable colored console output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// loadConfig resolves the configuration in order defaults, file, dotenv,
// environment, flags, and validates the result.
func loadConfig(f *flags) (*config.Config, string, error) {
	path := f.configPath
	if path == "" {
		p, err := config.DefaultPath("gateway.yaml")
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	var dotenv []string
	for _, part := range strings.Split(f.envFiles, ",") {
		if v := strings.TrimSpace(part); v != "" {
			dotenv = append(dotenv, v)
		}
	}

	cfg, err := config.Load(config.LoadOptions{Path: path, DotEnv: dotenv})
	if err != nil {
		return nil, path, err
	}

	if f.listenAddr != "" {
		cfg.Gateway.ListenAddr = f.listenAddr
	}
	if f.brokerURL != "" {
		cfg.Broker.URL = f.brokerURL
	}
	if f.driver != "" {
		cfg.Broker.Driver = f.driver
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "\nConfiguration errors (%d):\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		return nil, path, fmt.Errorf("invalid configuration")
	}
	return cfg, path, nil
}
