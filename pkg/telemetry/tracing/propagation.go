package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
)

// W3C Trace Context headers (traceparent, tracestate) and baggage are
// carried on report submissions and read from requests to the local
// server.
var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// Propagator returns the text map propagator used for HTTP headers.
func Propagator() propagation.TextMapPropagator {
	return propagator
}

// Extract returns ctx carrying the trace context found in headers. Without
// trace headers ctx is returned unchanged.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return propagator.Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the trace context of ctx into headers.
func Inject(ctx context.Context, headers http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}
