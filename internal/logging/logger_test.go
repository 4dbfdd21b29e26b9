// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if cfg.Caller {
		t.Error("expected default caller to be false")
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer

	if err := Init(Config{Level: "debug", Format: "json", Timestamp: true, Output: &buf}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer Init(DefaultConfig()) //nolint:errcheck

	Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, `"level":"info"`) {
		t.Errorf("expected output to contain level, got: %s", output)
	}
}

func TestInitRunLogAppends(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	defer Init(DefaultConfig()) //nolint:errcheck

	if err := Init(Config{Level: "info", Output: &buf, RunLog: path}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	Info().Msg("first run")
	if err := Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if err := Init(Config{Level: "info", Output: &buf, RunLog: path}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	Warn().Msg("second run")
	if err := Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 run log lines, got %d: %q", len(lines), data)
	}
	for _, line := range lines {
		if !strings.Contains(line, `"time":`) {
			t.Errorf("run log line missing timestamp: %s", line)
		}
	}
	if !strings.Contains(lines[0], "first run") || !strings.Contains(lines[1], "second run") {
		t.Errorf("run log lines out of order: %q", lines)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	defer Init(DefaultConfig()) //nolint:errcheck

	if err := Init(Config{Level: "info", Format: "console", Output: &buf}); err != nil {
		t.Fatal(err)
	}
	Info().Str("version", "1.2.3").Msg("console line")

	out := buf.String()
	if strings.Contains(out, `"message"`) {
		t.Errorf("console output should not be JSON: %s", out)
	}
	if !strings.Contains(out, "console line") {
		t.Errorf("missing message in console output: %s", out)
	}
}
