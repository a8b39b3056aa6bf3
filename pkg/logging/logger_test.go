package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestComponentPrefixWithoutColors(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, zapcore.DebugLevel, "console", false)

	logger.ComponentInfo(ComponentSubscription, "subscribed", zap.String("queue", "1@/t"))
	_ = logger.Sync()

	out := buf.String()
	if !strings.Contains(out, "[SUBSCRIPTION] subscribed") {
		t.Errorf("expected component prefix, got %q", out)
	}
	if !strings.Contains(out, "1@/t") {
		t.Errorf("expected field value, got %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("expected no ANSI codes, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, zapcore.WarnLevel, "console", false)

	logger.ComponentDebug(ComponentBroker, "hidden")
	logger.ComponentInfo(ComponentBroker, "hidden too")
	logger.ComponentWarn(ComponentBroker, "shown")
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warn line, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, zapcore.InfoLevel, "json", false)

	logger.ComponentError(ComponentGateway, "upgrade failed")
	_ = logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "[GATEWAY] upgrade failed" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firehose.log")
	logger, err := NewLogger(Options{Level: "info", Format: "console", OutputFile: path, EnableColors: true})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.ComponentInfo(ComponentGeneral, "to file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[GENERAL] to file") {
		t.Errorf("expected uncolored line in file, got %q", data)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.ComponentInfo(ComponentGeneral, "discarded")
	if logger.For(ComponentBroker) == nil {
		t.Fatal("expected scoped logger")
	}
}
