// Package tracing provides OpenTelemetry tracing for the backlog.
//
// Spans cover the two places where time is spent: one "delivery.attempt"
// span per record handed to the transport, and one span per request to
// the local HTTP server. Trace context travels as W3C traceparent headers:
// the transport injects it into every submission and the server extracts
// it from incoming requests. Retry ticks run outside any request, so their
// attempts start new root spans; a flush requested over HTTP nests its
// attempts under the request span.
//
// # Configuration
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    sampler: ratio       # always, never, ratio
//	    sample_ratio: 0.1
//	    endpoint: localhost:4317
//	    insecure: true
//
// Spans are exported in batches over OTLP/gRPC. Call Shutdown before exit
// to flush them.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "delivery.attempt")
//	defer span.End()
//
// A nil *Tracer starts noop spans.
package tracing
