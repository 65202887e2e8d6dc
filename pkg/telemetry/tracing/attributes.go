package tracing

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set by quotagate. HTTP attributes follow the OpenTelemetry
// semantic conventions; everything else lives under "quotagate.".
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPURL        = "http.url"

	AttrRequestID = "quotagate.request_id"
	AttrUpstream  = "quotagate.upstream"

	AttrLimiterOutcome = "quotagate.limiter.outcome"
	AttrLimiterWaitMS  = "quotagate.limiter.wait_ms"

	AttrRetryCount   = "quotagate.retry_count"
	AttrErrorType    = "quotagate.error.type"
	AttrErrorMessage = "error.message"
)

// SetLimiterAttributes records how the limiter treated a call.
func SetLimiterAttributes(span trace.Span, outcome string, wait time.Duration) {
	span.SetAttributes(
		attribute.String(AttrLimiterOutcome, outcome),
		attribute.Int64(AttrLimiterWaitMS, wait.Milliseconds()),
	)
}

// SetUpstreamAttributes records the upstream target of a request.
func SetUpstreamAttributes(span trace.Span, upstream, method, url string) {
	span.SetAttributes(
		attribute.String(AttrUpstream, upstream),
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPURL, url),
	)
}

// SetStatusCode records the HTTP status of a response.
func SetStatusCode(span trace.Span, code int) {
	span.SetAttributes(attribute.Int(AttrHTTPStatusCode, code))
}

// SetRetryAttribute records how many retries a request needed.
func SetRetryAttribute(span trace.Span, retries int) {
	span.SetAttributes(attribute.Int(AttrRetryCount, retries))
}

// SetErrorAttributes records err together with a short classification such
// as "timeout" or "rate_limit".
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.SetAttributes(
		attribute.String(AttrErrorType, errorType),
		attribute.String(AttrErrorMessage, err.Error()),
	)
	span.RecordError(err)
	SetStatus(span, err)
}

// SetStatus marks span Ok when err is nil and Error otherwise.
func SetStatus(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetStatus(codes.Error, err.Error())
}
