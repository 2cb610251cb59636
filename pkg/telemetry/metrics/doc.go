// Package metrics exposes Prometheus metrics for the offline crash-report
// backlog.
//
// # Metrics Categories
//
//   - Store Metrics: record count, byte usage, evictions, reconcile drift
//   - Capture Metrics: capture attempts by result
//   - Delivery Metrics: attempts by outcome, transport latency, in-flight flag
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordCapture("stored")
//	collector.RecordDelivery("success", "auto", 120*time.Millisecond)
//
//	http.Handle("/metrics", collector.Handler())
//
// A nil *Collector is accepted everywhere and records nothing.
package metrics
