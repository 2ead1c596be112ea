package services

import "context"

type contextKey string

const (
	threadIDKey    contextKey = "thread_id"
	replyNumberKey contextKey = "reply_number"
	requestIDKey   contextKey = "request_id"
)

// WithThreadID annotates context with the monitored thread identifier.
func WithThreadID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, threadIDKey, id)
}

// ThreadIDFromContext returns the thread identifier if present.
func ThreadIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(threadIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithReplyNumber annotates context with the reply number being processed.
func WithReplyNumber(ctx context.Context, number int) context.Context {
	if number <= 0 {
		return ctx
	}
	return context.WithValue(ctx, replyNumberKey, number)
}

// ReplyNumberFromContext extracts the reply number if present.
func ReplyNumberFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(replyNumberKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
