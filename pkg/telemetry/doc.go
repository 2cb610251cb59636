// Package telemetry groups the observability packages of the backlog.
//
// # Components
//
//   - logging: structured slog logging with record and attempt context
//   - metrics: Prometheus collectors for captures, deliveries, evictions
//     and database size
//   - tracing: OpenTelemetry spans for captures, delivery attempts and
//     server requests
//   - health: liveness and readiness probes for `backlog run`
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//
// Every component takes the logger, collector and tracer as options and
// treats a nil collector or tracer as disabled.
package telemetry
