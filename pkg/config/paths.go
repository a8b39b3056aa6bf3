package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDir returns the path to the firehose config directory (~/.firehose).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".firehose"), nil
}

// DefaultPath returns the path to the config file for the given name, e.g.
// "gateway.yaml". An absolute name is returned unchanged. The result may not
// exist; Load treats a missing file as "use defaults".
func DefaultPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}

	// A file in the working directory wins over the per-user one
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
