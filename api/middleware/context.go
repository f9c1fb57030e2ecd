package middleware

import "context"

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

// UserIDFromContext returns the shopper id set by User, or "".
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(nonNil(ctx), userIDKey, userID)
}

// RequestIDFromContext returns the id assigned by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(nonNil(ctx), requestIDKey, requestID)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func nonNil(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
