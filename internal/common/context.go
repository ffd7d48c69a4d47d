package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyStem      contextKey = "stem"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithStem tags the context with the page-set stem being processed.
func WithStem(ctx context.Context, stem string) context.Context {
	return context.WithValue(ctx, ContextKeyStem, stem)
}

// StemFromContext extracts the page-set stem from context
func StemFromContext(ctx context.Context) string {
	if stem, ok := ctx.Value(ContextKeyStem).(string); ok {
		return stem
	}
	return ""
}
