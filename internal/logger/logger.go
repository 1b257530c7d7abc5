package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// ContextKey is the type for context keys used in logging
type ContextKey string

const (
	// LeadIDKey is the context key for lead_id
	LeadIDKey ContextKey = "lead_id"
	// CorrelationIDKey is the context key for correlation_id
	CorrelationIDKey ContextKey = "correlation_id"
	// PlatformKey is the context key for the webhook platform
	PlatformKey ContextKey = "platform"
)

var defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// Init initializes the global structured logger with JSON output
func Init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// WithContext creates a logger carrying context values
// (lead_id, correlation_id, platform)
func WithContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger

	if leadID, ok := ctx.Value(LeadIDKey).(string); ok {
		logger = logger.With("lead_id", leadID)
	}

	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		logger = logger.With("correlation_id", correlationID)
	}

	if platform, ok := ctx.Value(PlatformKey).(string); ok {
		logger = logger.With("platform", platform)
	}

	return logger
}

// Info logs an info message with context
func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// Error logs an error message with context
func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// Warn logs a warning message with context
func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// Debug logs a debug message with context
func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

// LogError logs an error with the causing error attached
func LogError(ctx context.Context, msg string, err error, args ...any) {
	logger := WithContext(ctx)
	allArgs := append([]any{"error", err.Error()}, args...)
	logger.Error(msg, allArgs...)
}

// Critical logs an error-level event flagged for external alerting.
// Used for dead-letter escalation and other conditions that need a human.
func Critical(ctx context.Context, msg string, args ...any) {
	logger := WithContext(ctx).With("alert", true, "severity", "critical")
	logger.Error(msg, args...)
}

// LogSlowOperation logs operations that exceed the threshold
func LogSlowOperation(ctx context.Context, operation string, duration time.Duration) {
	if duration > time.Second {
		logger := WithContext(ctx).With(
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
		)
		logger.Warn("Slow operation detected")
	}
}
