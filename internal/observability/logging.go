// Package observability provides structured logging, distributed tracing
// and metrics for the evaluation harness.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger provides structured logging with sensitive-data redaction.
//
// Built on Go's slog package, it supports:
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - JSON output for machine consumption, text for terminals
//   - Automatic run-name correlation from context
//   - Redaction of API keys and tokens before they reach a log line
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format specifies output format: "json" or "text".
	Format string

	// Output is the writer for log output (defaults to os.Stderr).
	Output io.Writer

	// RedactPatterns are additional regex patterns for redaction beyond
	// the built-in API key patterns.
	RedactPatterns []string
}

// ContextKey is the type for context keys carried into log records.
type ContextKey string

// RunNameKey is the context key for the active run name.
const RunNameKey ContextKey = "run_name"

// DefaultRedactPatterns covers the credentials the harness handles.
var DefaultRedactPatterns = []string{
	// OpenAI API keys
	`sk-[a-zA-Z0-9_-]{20,}`,
	// Anthropic API keys
	`sk-ant-[a-zA-Z0-9_-]{20,}`,
	// Generic bearer tokens
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
}

// NewLogger creates a structured logger. Empty config fields fall back to
// info level, text format, os.Stderr.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error-level message with optional key-value pairs.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redactString(msg)

	attrs := make([]any, 0, len(args)+2)
	if runName, ok := ctx.Value(RunNameKey).(string); ok && runName != "" {
		attrs = append(attrs, slog.String("run", runName))
	}
	for _, arg := range args {
		attrs = append(attrs, l.redactValue(arg))
	}

	l.logger.Log(ctx, level, msg, attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch typed := v.(type) {
	case string:
		return l.redactString(typed)
	case error:
		return l.redactString(typed.Error())
	case fmt.Stringer:
		return l.redactString(typed.String())
	default:
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// WithRunName stores the run name in the context for log correlation.
func WithRunName(ctx context.Context, runName string) context.Context {
	return context.WithValue(ctx, RunNameKey, runName)
}
