package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	RequestID string // HTTP request ID
	ClientIP  string // Client IP address (without port)
	UserID    string // Authenticated user ID, if any
	DeviceID  string // Authenticated device ID, if any
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// appendContextFields prepends request-scoped fields so they appear first
// in output.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 8+len(args))

	if lc.RequestID != "" {
		ctxArgs = append(ctxArgs, "request_id", lc.RequestID)
	}
	if lc.ClientIP != "" {
		ctxArgs = append(ctxArgs, "client_ip", lc.ClientIP)
	}
	if lc.UserID != "" {
		ctxArgs = append(ctxArgs, "user_id", lc.UserID)
	}
	if lc.DeviceID != "" {
		ctxArgs = append(ctxArgs, "device_id", lc.DeviceID)
	}

	return append(ctxArgs, args...)
}
