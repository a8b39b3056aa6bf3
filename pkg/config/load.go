package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable the config reads,
// e.g. FIREHOSE_BROKER_URL or FIREHOSE_GATEWAY_LISTEN_ADDR.
const EnvPrefix = "FIREHOSE_"

// LoadOptions controls where Load looks for settings.
type LoadOptions struct {
	// Path of the YAML file. A missing file is not an error.
	Path string
	// DotEnv files to load into the process environment first. Variables
	// already set are not overwritten. Missing files are skipped.
	DotEnv []string
	// Environ replaces the process environment when non-nil (tests).
	Environ map[string]string
}

// Load builds the configuration from defaults, then the YAML file, then
// environment variables, each layer overriding the one before.
func Load(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	if opts.Path != "" {
		if err := loadFile(opts.Path, cfg); err != nil {
			return nil, err
		}
	}

	for _, file := range opts.DotEnv {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	envOpts := env.Options{Prefix: EnvPrefix}
	if opts.Environ != nil {
		envOpts.Environment = opts.Environ
	}
	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	if err := DecodeStrict(f, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
