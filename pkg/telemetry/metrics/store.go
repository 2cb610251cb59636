package metrics

import (
	"mercator-hq/backlog/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks the offline database.
//
// Metrics:
//   - backlog_store_records: Records currently indexed
//   - backlog_store_bytes: Bytes currently indexed
//   - backlog_store_evictions_total: Records dropped by reason
//   - backlog_store_drift_bytes: On-disk minus indexed bytes at last reconcile
//   - backlog_maintenance_runs_total: Maintenance job runs by job and status
type StoreMetrics struct {
	records         prometheus.Gauge
	bytes           prometheus.Gauge
	evictionsTotal  *prometheus.CounterVec
	driftBytes      prometheus.Gauge
	maintenanceRuns *prometheus.CounterVec
}

// NewStoreMetrics creates and registers store metrics with the provided registry.
func NewStoreMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StoreMetrics {
	sm := &StoreMetrics{
		records: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_records",
				Help:      "Number of records currently held in the offline database",
			},
		),

		bytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_bytes",
				Help:      "Total size in bytes of the records in the offline database",
			},
		),

		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_evictions_total",
				Help:      "Total number of records removed without delivery",
			},
			[]string{"reason"},
		),

		driftBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_drift_bytes",
				Help:      "On-disk bytes minus indexed bytes at the last reconcile",
			},
		),

		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "maintenance_runs_total",
				Help:      "Total number of maintenance job runs",
			},
			[]string{"job", "status"},
		),
	}

	registry.MustRegister(
		sm.records,
		sm.bytes,
		sm.evictionsTotal,
		sm.driftBytes,
		sm.maintenanceRuns,
	)

	return sm
}

// UpdateUsage sets the record and byte gauges.
func (sm *StoreMetrics) UpdateUsage(records int, bytes int64) {
	sm.records.Set(float64(records))
	sm.bytes.Set(float64(bytes))
}

// RecordEviction increments the eviction counter.
func (sm *StoreMetrics) RecordEviction(reason string) {
	sm.evictionsTotal.WithLabelValues(reason).Inc()
}

// RecordDrift sets the drift gauge.
func (sm *StoreMetrics) RecordDrift(bytes int64) {
	sm.driftBytes.Set(float64(bytes))
}

// RecordMaintenance increments the maintenance run counter.
func (sm *StoreMetrics) RecordMaintenance(job, status string) {
	sm.maintenanceRuns.WithLabelValues(job, status).Inc()
}
