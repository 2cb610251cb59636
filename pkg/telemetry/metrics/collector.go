package metrics

import (
	"time"

	"mercator-hq/backlog/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric exported by the backlog.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without guarding each call.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	storeMetrics    *StoreMetrics
	captureMetrics  *CaptureMetrics
	deliveryMetrics *DeliveryMetrics
}

// NewCollector creates a collector registering on registry. A nil registry
// gets a fresh private one.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	db, err := database.Open(dbCfg, database.WithMetrics(collector))
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.DeliveryDurationBuckets) == 0 {
		// 10ms - 30s
		cfg.DeliveryDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}
	}

	return &Collector{
		config:          cfg,
		registry:        registry,
		storeMetrics:    NewStoreMetrics(cfg, registry),
		captureMetrics:  NewCaptureMetrics(cfg, registry),
		deliveryMetrics: NewDeliveryMetrics(cfg, registry),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// UpdateStore publishes the current record count and total size.
func (c *Collector) UpdateStore(records int, bytes int64) {
	if !c.enabled() {
		return
	}
	c.storeMetrics.UpdateUsage(records, bytes)
}

// RecordEviction counts a record removed without being delivered.
//
// Reasons: "capacity", "retry_limit", "invalid", "orphan".
func (c *Collector) RecordEviction(reason string) {
	if !c.enabled() {
		return
	}
	c.storeMetrics.RecordEviction(reason)
}

// RecordDrift publishes the difference between on-disk and indexed bytes.
func (c *Collector) RecordDrift(bytes int64) {
	if !c.enabled() {
		return
	}
	c.storeMetrics.RecordDrift(bytes)
}

// RecordMaintenance counts a maintenance job run.
func (c *Collector) RecordMaintenance(job, status string) {
	if !c.enabled() {
		return
	}
	c.storeMetrics.RecordMaintenance(job, status)
}

// RecordCapture counts a capture attempt by result.
//
// Results: "stored", "duplicate", "rate_limited", "rejected", "error".
func (c *Collector) RecordCapture(result string) {
	if !c.enabled() {
		return
	}
	c.captureMetrics.RecordCapture(result)
}

// RecordDelivery records one finished delivery attempt.
//
// Parameters:
//   - outcome: "success", "failure" or "throttled"
//   - mode: "auto" for the retry loop, "flush" for an explicit flush
//   - duration: time spent in the transport
func (c *Collector) RecordDelivery(outcome, mode string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.deliveryMetrics.RecordDelivery(outcome, mode, duration)
}

// SetInFlight marks whether a delivery is currently outstanding.
func (c *Collector) SetInFlight(inFlight bool) {
	if !c.enabled() {
		return
	}
	c.deliveryMetrics.SetInFlight(inFlight)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
