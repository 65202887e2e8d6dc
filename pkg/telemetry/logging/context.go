package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// UpstreamKey is the context key for the upstream API name.
	UpstreamKey contextKey = "upstream"

	// BucketKey is the context key for a rate limit window label.
	BucketKey contextKey = "bucket"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"

	// SpanIDKey is the context key for span IDs.
	SpanIDKey contextKey = "span_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithUpstream adds the upstream name to the context.
func WithUpstream(ctx context.Context, upstream string) context.Context {
	return context.WithValue(ctx, UpstreamKey, upstream)
}

// GetUpstream retrieves the upstream name from the context.
func GetUpstream(ctx context.Context) string {
	return stringValue(ctx, UpstreamKey)
}

// WithBucket adds a rate limit window label to the context.
func WithBucket(ctx context.Context, bucket string) context.Context {
	return context.WithValue(ctx, BucketKey, bucket)
}

// GetBucket retrieves the rate limit window label from the context.
func GetBucket(ctx context.Context) string {
	return stringValue(ctx, BucketKey)
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// WithSpanID adds a span ID to the context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// GetSpanID retrieves the span ID from the context.
func GetSpanID(ctx context.Context) string {
	return stringValue(ctx, SpanIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// contextFields lists the keys copied into log records, in output order.
var contextFields = []contextKey{RequestIDKey, UpstreamKey, BucketKey, TraceIDKey, SpanIDKey}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any
	for _, key := range contextFields {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}
