package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RecordIDKey is the context key for the record being processed.
	RecordIDKey contextKey = "record_id"

	// AttemptKey is the context key for the delivery attempt number.
	AttemptKey contextKey = "attempt"

	// ModeKey is the context key for the delivery mode ("auto" or "flush").
	ModeKey contextKey = "mode"

	// RequestIDKey is the context key for the HTTP request ID.
	RequestIDKey contextKey = "request_id"
)

// WithRecordID adds a record ID to the context.
func WithRecordID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RecordIDKey, id)
}

// GetRecordID retrieves the record ID from the context.
func GetRecordID(ctx context.Context) string {
	if id, ok := ctx.Value(RecordIDKey).(string); ok {
		return id
	}
	return ""
}

// WithAttempt adds the attempt number to the context.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, AttemptKey, attempt)
}

// GetAttempt retrieves the attempt number from the context, or 0.
func GetAttempt(ctx context.Context) int {
	if n, ok := ctx.Value(AttemptKey).(int); ok {
		return n
	}
	return 0
}

// WithMode adds the delivery mode to the context.
func WithMode(ctx context.Context, mode string) context.Context {
	return context.WithValue(ctx, ModeKey, mode)
}

// GetMode retrieves the delivery mode from the context.
func GetMode(ctx context.Context) string {
	if mode, ok := ctx.Value(ModeKey).(string); ok {
		return mode
	}
	return ""
}

// WithRequestID adds an HTTP request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID retrieves the HTTP request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// extractContextFields returns the known context values as slog args.
func extractContextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var fields []any
	if id := GetRecordID(ctx); id != "" {
		fields = append(fields, string(RecordIDKey), id)
	}
	if attempt := GetAttempt(ctx); attempt > 0 {
		fields = append(fields, string(AttemptKey), attempt)
	}
	if mode := GetMode(ctx); mode != "" {
		fields = append(fields, string(ModeKey), mode)
	}
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, string(RequestIDKey), id)
	}
	return fields
}

// Fields returns the known context values as slog args, for loggers that
// are not wrapped by Logger.
func Fields(ctx context.Context) []any {
	return extractContextFields(ctx)
}
