package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLoggerRedactsAPIKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "text", Output: &buf})

	logger.Info(context.Background(), "client configured",
		"key", "sk-abcdefghijklmnopqrstuvwxyz123456")

	out := buf.String()
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwxyz123456") {
		t.Fatalf("api key leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker in output: %s", out)
	}
}

func TestLoggerRunNameFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := WithRunName(context.Background(), "2026-09-01-ab12-gpt-5-nano")
	logger.Info(ctx, "item scored")

	if !strings.Contains(buf.String(), "2026-09-01-ab12-gpt-5-nano") {
		t.Errorf("run name missing from log record: %s", buf.String())
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Info(context.Background(), "should be dropped")
	logger.Warn(context.Background(), "should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Errorf("info record passed warn filter")
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn record missing")
	}
}
