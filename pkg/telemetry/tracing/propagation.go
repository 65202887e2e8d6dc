package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Propagator returns the global text map propagator. New installs W3C
// Trace Context and Baggage.
func Propagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}

// Extract returns ctx carrying the trace context found in headers, or ctx
// unchanged when there is none.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return Propagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the trace context from ctx into headers as traceparent and
// tracestate. The upstream client calls it on every attempt.
func Inject(ctx context.Context, headers http.Header) {
	Propagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// RouteFunc names the route a request will be served by, or "" if none.
type RouteFunc func(r *http.Request) string

// MuxRoute reports the pattern mux would dispatch r to, so every forwarded
// path under one prefix shares a single route value.
func MuxRoute(mux *http.ServeMux) RouteFunc {
	return func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	}
}

// HTTPMiddleware extracts the caller's trace context and, when tracer is
// enabled, starts a server span. route, if non-nil, supplies the http.route
// attribute. The trace ID is echoed in X-Trace-ID so callers can correlate
// a throttled request.
func HTTPMiddleware(tracer *Tracer, route RouteFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := Extract(r.Context(), r.Header)

		if tracer.Enabled() {
			attrs := []attribute.KeyValue{attribute.String(AttrHTTPMethod, r.Method)}
			if route != nil {
				if pattern := route(r); pattern != "" {
					attrs = append(attrs, attribute.String(AttrHTTPRoute, pattern))
				}
			}

			var span trace.Span
			ctx, span = tracer.Start(ctx, "quotagate.request",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()
		}

		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			w.Header().Set("X-Trace-ID", sc.TraceID().String())
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
