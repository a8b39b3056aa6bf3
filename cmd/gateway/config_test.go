package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DeBrosOfficial/firehose/pkg/config"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yaml := "broker:\n  driver: amqp\n  default_ttl: 20s\ngateway:\n  listen_addr: \":9000\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := parseFlags([]string{"-config", path, "-env-file", "", "-driver", "memory", "-addr", ":9100"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg, got, err := loadConfig(f)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if cfg.Broker.Driver != config.DriverMemory {
		t.Errorf("driver = %q", cfg.Broker.Driver)
	}
	if cfg.Gateway.ListenAddr != ":9100" {
		t.Errorf("listen addr = %q", cfg.Gateway.ListenAddr)
	}
	if cfg.Broker.DefaultTTL != 20*time.Second {
		t.Errorf("default ttl = %v", cfg.Broker.DefaultTTL)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	f, err := parseFlags([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml"), "-env-file", "", "-driver", "kafka"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if _, _, err := loadConfig(f); err == nil {
		t.Fatal("expected validation failure for unknown driver")
	}
}
