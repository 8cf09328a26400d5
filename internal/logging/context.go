package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names the kind of event a warning or error describes.
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldRequestID is the media request identifier.
	FieldRequestID = "request_id"
	// FieldPassID correlates every line of one reconciliation pass.
	FieldPassID = "pass_id"
	// FieldCorrelationID tags HTTP API calls.
	FieldCorrelationID = "correlation_id"
)

type contextKey int

const (
	passIDKey contextKey = iota
	correlationIDKey
)

// WithPassID stores a reconciliation pass identifier on the context.
func WithPassID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, passIDKey, id)
}

// WithCorrelationID stores an API request correlation identifier on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(passIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldPassID, id))
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
