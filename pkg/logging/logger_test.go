// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "", want: slog.LevelInfo},
		{level: "warning", want: slog.LevelWarn},
		{level: "WARN", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLevel(tt.level)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		isJSON  bool
		wantErr bool
	}{
		{name: "json", format: "json", isJSON: true},
		{name: "default is json", format: "", isJSON: true},
		{name: "text", format: "text"},
		{name: "unsupported", format: "logfmt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLoggerWithWriter(Config{Format: tt.format}, &buf)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			logger.Info("size sampled", "bytes", 42)
			var m map[string]any
			jsonErr := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m)
			if tt.isJSON && jsonErr != nil {
				t.Errorf("expected JSON output, got: %s", buf.String())
			}
			if !tt.isJSON && jsonErr == nil {
				t.Errorf("expected text output, got JSON: %s", buf.String())
			}
		})
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLoggerWithWriter(Config{Level: "warn", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info("quiet")
	if buf.Len() > 0 {
		t.Errorf("expected no output below warn, got: %s", buf.String())
	}
	logger.Warn("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Error("expected warn message in output")
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "logwarden.log")

	logger, closer, err := NewLogger(Config{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("written to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing message: %s", data)
	}
}

func TestNewLogger_Stdout(t *testing.T) {
	logger, closer, err := NewLogger(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger == nil || closer == nil {
		t.Fatal("expected logger and closer")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("stdout closer should not fail: %v", err)
	}
}

func TestForRun(t *testing.T) {
	var buf bytes.Buffer
	base, _ := NewLoggerWithWriter(Config{Format: "json"}, &buf)

	ForRun(base, "run-1", "check", "web01").Info("hello")

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for key, want := range map[string]string{"run_id": "run-1", "mode": "check", "host": "web01"} {
		if m[key] != want {
			t.Errorf("%s = %v, want %s", key, m[key], want)
		}
	}
}

func TestForRun_NoHost(t *testing.T) {
	var buf bytes.Buffer
	base, _ := NewLoggerWithWriter(Config{Format: "json"}, &buf)

	ForRun(base, "run-2", "daily", "").Info("hello")

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := m["host"]; ok {
		t.Errorf("host should be omitted, got %v", m["host"])
	}
	if m["run_id"] != "run-2" {
		t.Errorf("run_id = %v", m["run_id"])
	}
}
