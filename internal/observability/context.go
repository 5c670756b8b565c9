package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

// Correlation keys carried through a generation. The key text doubles as the
// log field name.
const (
	traceIDKey   contextKey = "trace_id"
	spanIDKey    contextKey = "span_id"
	requestIDKey contextKey = "request_id"
	providerKey  contextKey = "provider"
	userIDKey    contextKey = "user_id"
	designIDKey  contextKey = "design_id"
)

// loggedKeys is the order in which correlation ids appear on log lines.
var loggedKeys = []contextKey{traceIDKey, spanIDKey, requestIDKey, userIDKey, designIDKey, providerKey}

const (
	traceIDBytes = 16
	spanIDBytes  = 8
)

// WithTraceID injects trace ID into context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withValue(ctx, traceIDKey, traceID)
}

// WithSpanID injects span ID into context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return withValue(ctx, spanIDKey, spanID)
}

// WithRequestID injects request ID into context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey, requestID)
}

// WithProvider tags the context with the backend handling the current attempt.
func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, providerKey, provider)
}

// WithUserID tags the context with the user the generation is billed to.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDKey, userID)
}

// WithDesignID tags the context with the design being generated.
func WithDesignID(ctx context.Context, designID string) context.Context {
	return withValue(ctx, designIDKey, designID)
}

func GetTraceID(ctx context.Context) string   { return stringValue(ctx, traceIDKey) }
func GetSpanID(ctx context.Context) string    { return stringValue(ctx, spanIDKey) }
func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }
func GetProvider(ctx context.Context) string  { return stringValue(ctx, providerKey) }
func GetUserID(ctx context.Context) string    { return stringValue(ctx, userIDKey) }
func GetDesignID(ctx context.Context) string  { return stringValue(ctx, designIDKey) }

// ContextFields returns the correlation ids present in ctx as log fields.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, len(loggedKeys))
	for _, key := range loggedKeys {
		if value := stringValue(ctx, key); value != "" {
			fields = append(fields, zap.String(string(key), value))
		}
	}
	return fields
}

// withValue leaves ctx untouched for empty values so an outer id is not masked.
func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

// GenerateTraceID returns a W3C trace id (32 hex chars).
func GenerateTraceID() string {
	return randomHex(traceIDBytes)
}

// GenerateSpanID returns a W3C span id (16 hex chars).
func GenerateSpanID() string {
	return randomHex(spanIDBytes)
}

// GenerateRequestID returns a UUID request id.
func GenerateRequestID() string {
	return uuid.NewString()
}

func randomHex(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		id := uuid.New()
		return hex.EncodeToString(id[:])[:size*2]
	}
	return hex.EncodeToString(buf)
}
