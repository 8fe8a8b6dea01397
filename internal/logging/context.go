package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	sessionIDKey     contextKey = "session_id"
)

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// ContextWithSessionID tags ctx with the study session it acts on.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

func GenerateCorrelationID() string {
	return "corr_" + uuid.NewString()
}

func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func fieldsFromContext(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if id, ok := CorrelationIDFromContext(ctx); ok {
		fields["correlation_id"] = id
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		fields["request_id"] = id
	}
	if id, ok := SessionIDFromContext(ctx); ok {
		fields["session_id"] = id
	}
	return fields
}
