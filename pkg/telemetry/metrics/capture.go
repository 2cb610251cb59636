package metrics

import (
	"mercator-hq/backlog/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics tracks report intake.
//
// Metrics:
//   - backlog_captures_total: Capture attempts by result
type CaptureMetrics struct {
	capturesTotal *prometheus.CounterVec
}

// NewCaptureMetrics creates and registers capture metrics with the provided registry.
func NewCaptureMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CaptureMetrics {
	cm := &CaptureMetrics{
		capturesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "captures_total",
				Help:      "Total number of report capture attempts",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(cm.capturesTotal)

	return cm
}

// RecordCapture increments the capture counter.
func (cm *CaptureMetrics) RecordCapture(result string) {
	cm.capturesTotal.WithLabelValues(result).Inc()
}
