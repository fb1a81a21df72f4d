// Package logger provides structured JSON logging for Catalens.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with additional context fields.
type Logger struct {
	*slog.Logger
}

type contextKey string

const (
	jobIDKey      contextKey = "job_id"
	entityTypeKey contextKey = "entity_type"
	indexKey      contextKey = "index"
)

// New creates a new Logger with JSON output on stderr.
func New() *Logger {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a new Logger with JSON output to the provided writer.
func NewWithWriter(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NewDebug creates a Logger that also emits debug records. Used when the
// --verbose flag is set.
func NewDebug(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a Logger that drops every record. Useful for tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// With returns a new logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext returns a logger with context values attached.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if jobID := JobIDFromContext(ctx); jobID != "" {
		logger = logger.With(slog.String("job_id", jobID))
	}
	if entityType := EntityTypeFromContext(ctx); entityType != "" {
		logger = logger.With(slog.String("entity_type", entityType))
	}
	if index, ok := ctx.Value(indexKey).(string); ok && index != "" {
		logger = logger.With(slog.String("index", index))
	}

	return &Logger{Logger: logger}
}

// ContextWithJobID adds a reindex job ID to the context.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// ContextWithEntityType adds an entity type to the context.
func ContextWithEntityType(ctx context.Context, entityType string) context.Context {
	return context.WithValue(ctx, entityTypeKey, entityType)
}

// ContextWithIndex adds an index name to the context.
func ContextWithIndex(ctx context.Context, index string) context.Context {
	return context.WithValue(ctx, indexKey, index)
}

// JobIDFromContext extracts the reindex job ID from the context.
func JobIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(jobIDKey).(string); ok {
		return id
	}
	return ""
}

// EntityTypeFromContext extracts the entity type from the context.
func EntityTypeFromContext(ctx context.Context) string {
	if et, ok := ctx.Value(entityTypeKey).(string); ok {
		return et
	}
	return ""
}
