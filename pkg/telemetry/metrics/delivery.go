package metrics

import (
	"time"

	"mercator-hq/backlog/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DeliveryMetrics tracks delivery attempts.
//
// Metrics:
//   - backlog_deliveries_total: Attempts by outcome and mode
//   - backlog_delivery_duration_seconds: Transport time histogram
//   - backlog_delivery_in_flight: 1 while a delivery is outstanding
type DeliveryMetrics struct {
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	inFlight         prometheus.Gauge
}

// NewDeliveryMetrics creates and registers delivery metrics with the provided registry.
func NewDeliveryMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DeliveryMetrics {
	factory := promauto.With(registry)

	return &DeliveryMetrics{
		deliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "deliveries_total",
				Help:      "Total number of delivery attempts",
			},
			[]string{"outcome", "mode"},
		),

		deliveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "delivery_duration_seconds",
				Help:      "Duration of delivery attempts in seconds",
				Buckets:   cfg.DeliveryDurationBuckets,
			},
			[]string{"outcome"},
		),

		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "delivery_in_flight",
				Help:      "Whether a delivery attempt is currently outstanding",
			},
		),
	}
}

// RecordDelivery records one finished delivery attempt.
func (dm *DeliveryMetrics) RecordDelivery(outcome, mode string, duration time.Duration) {
	dm.deliveriesTotal.WithLabelValues(outcome, mode).Inc()
	dm.deliveryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetInFlight sets the in-flight gauge.
func (dm *DeliveryMetrics) SetInFlight(inFlight bool) {
	if inFlight {
		dm.inFlight.Set(1)
		return
	}
	dm.inFlight.Set(0)
}
