package logger

import "context"

// loggerContextKey is a typed key for context values to avoid string collisions.
type loggerContextKey struct{ name string }

// RequestIDKey is the context key for request IDs. Use WithRequestID() to set values.
var RequestIDKey = loggerContextKey{"request_id"}

// WithRequestID returns a new context with the request ID set
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from ctx, empty when absent
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
