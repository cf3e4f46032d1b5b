package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, cfg LogConfig) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg.Output = &buf
	return NewLogger(cfg), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return out
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level    string
		logDebug bool
		logInfo  bool
		logWarn  bool
		logError bool
	}{
		{"debug", true, true, true, true},
		{"info", false, true, true, true},
		{"warn", false, false, true, true},
		{"error", false, false, false, true},
		{"", false, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, buf := newTestLogger(t, LogConfig{Level: tt.level})
			check := func(name string, fn func(string, ...any), want bool) {
				buf.Reset()
				fn(name)
				if got := buf.Len() > 0; got != want {
					t.Errorf("%s logged = %v, want %v", name, got, want)
				}
			}
			check("debug", logger.Debug, tt.logDebug)
			check("info", logger.Info, tt.logInfo)
			check("warn", logger.Warn, tt.logWarn)
			check("error", logger.Error, tt.logError)
		})
	}
}

func TestLoggerTextFormat(t *testing.T) {
	logger, buf := newTestLogger(t, LogConfig{Format: "text"})
	logger.Info("batch written", "accepted", 3)
	if out := buf.String(); !strings.Contains(out, "msg=\"batch written\"") || !strings.Contains(out, "accepted=3") {
		t.Fatalf("text output = %q", out)
	}
}

func TestLoggerContextIDs(t *testing.T) {
	logger, buf := newTestLogger(t, LogConfig{})
	ctx := AddScenarioID(AddRunID(context.Background(), "run-1"), "sc-9")

	logger.InfoContext(ctx, "scenario started")
	line := decodeLine(t, buf)
	if line["run_id"] != "run-1" || line["scenario_id"] != "sc-9" {
		t.Fatalf("context ids missing: %v", line)
	}

	buf.Reset()
	WithContext(ctx, logger.Slog()).Info("no context passed")
	line = decodeLine(t, buf)
	if line["run_id"] != "run-1" {
		t.Fatalf("WithContext ids missing: %v", line)
	}
	if GetRunID(ctx) != "run-1" || GetRunID(context.Background()) != "" {
		t.Error("GetRunID mismatch")
	}
}

func TestRedaction(t *testing.T) {
	tests := []struct {
		name   string
		log    func(l *slog.Logger)
		secret string
	}{
		{
			name:   "anthropic key in message",
			log:    func(l *slog.Logger) { l.Info("key sk-ant-REDACTED") },
			secret: "sk-ant-api03",
		},
		{
			name:   "groq key in attribute",
			log:    func(l *slog.Logger) { l.Info("provider ready", "detail", "using gsk_abcdefghijklmnopqrstuvwxyz0123456789AB") },
			secret: "gsk_abcdefghij",
		},
		{
			name:   "sensitive key name",
			log:    func(l *slog.Logger) { l.Info("config", "api_key", "short") },
			secret: "short",
		},
		{
			name:   "error value",
			log:    func(l *slog.Logger) { l.Error("call failed", "error", errors.New("bearer abcdefghijklmnopqrstuvwxyz rejected")) },
			secret: "abcdefghijklmnop",
		},
		{
			name:   "grouped attribute",
			log:    func(l *slog.Logger) { l.Info("nested", slog.Group("aws", "secret_access_key", "wJalrXUtnFEMI")) },
			secret: "wJalrXUtnFEMI",
		},
		{
			name:   "logger With attribute",
			log:    func(l *slog.Logger) { l.With("token", "abc123").Info("child") },
			secret: "abc123",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newTestLogger(t, LogConfig{})
			tt.log(logger.Slog())
			out := buf.String()
			if strings.Contains(out, tt.secret) {
				t.Errorf("secret %q leaked: %s", tt.secret, out)
			}
			if !strings.Contains(out, "[REDACTED]") {
				t.Errorf("expected [REDACTED] in %s", out)
			}
		})
	}
}

func TestRedactCustomPatterns(t *testing.T) {
	logger, buf := newTestLogger(t, LogConfig{RedactPatterns: []string{`internal-[0-9]+`}})
	logger.Info("ticket internal-4242 opened")
	if strings.Contains(buf.String(), "internal-4242") {
		t.Fatalf("custom pattern not applied: %s", buf.String())
	}
}

func TestLoggerRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "routergen.log")
	logger, buf := newTestLogger(t, LogConfig{File: path, MaxSizeMB: 1})
	logger.Info("to both outputs")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both outputs") || !strings.Contains(buf.String(), "to both outputs") {
		t.Fatalf("file = %q, buffer = %q", data, buf.String())
	}
}

func TestLogLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LogLevelFromString(tt.input); got != tt.want {
			t.Errorf("LogLevelFromString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
