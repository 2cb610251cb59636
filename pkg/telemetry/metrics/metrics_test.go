package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/backlog/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:                 true,
		Namespace:               "test",
		Subsystem:               "backlog",
		DeliveryDurationBuckets: []float64{0.1, 0.5, 1.0, 5.0},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_DefaultsApplied(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	collector := NewCollector(cfg, nil)

	if collector.Registry() == nil {
		t.Fatal("Expected a private registry")
	}
	if cfg.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("Expected namespace %q, got %q", config.DefaultMetricsNamespace, cfg.Namespace)
	}
	if len(cfg.DeliveryDurationBuckets) == 0 {
		t.Error("Expected default duration buckets")
	}
}

func TestCollector_StoreMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.UpdateStore(7, 4096)
	if got := testutil.ToFloat64(collector.storeMetrics.records); got != 7 {
		t.Errorf("Expected records=7, got %f", got)
	}
	if got := testutil.ToFloat64(collector.storeMetrics.bytes); got != 4096 {
		t.Errorf("Expected bytes=4096, got %f", got)
	}

	collector.RecordEviction("capacity")
	collector.RecordEviction("capacity")
	collector.RecordEviction("retry_limit")
	if got := testutil.ToFloat64(collector.storeMetrics.evictionsTotal.WithLabelValues("capacity")); got != 2 {
		t.Errorf("Expected 2 capacity evictions, got %f", got)
	}

	collector.RecordDrift(-12)
	if got := testutil.ToFloat64(collector.storeMetrics.driftBytes); got != -12 {
		t.Errorf("Expected drift=-12, got %f", got)
	}

	collector.RecordMaintenance("reconcile", "success")
	if got := testutil.ToFloat64(collector.storeMetrics.maintenanceRuns.WithLabelValues("reconcile", "success")); got != 1 {
		t.Errorf("Expected 1 maintenance run, got %f", got)
	}
}

func TestCollector_CaptureMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	tests := []struct {
		result string
		times  int
	}{
		{"stored", 3},
		{"duplicate", 2},
		{"rate_limited", 1},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			for i := 0; i < tt.times; i++ {
				collector.RecordCapture(tt.result)
			}
			got := testutil.ToFloat64(collector.captureMetrics.capturesTotal.WithLabelValues(tt.result))
			if got != float64(tt.times) {
				t.Errorf("Expected %d, got %f", tt.times, got)
			}
		})
	}
}

func TestCollector_DeliveryMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordDelivery("success", "auto", 200*time.Millisecond)
	collector.RecordDelivery("failure", "flush", time.Second)

	if got := testutil.ToFloat64(collector.deliveryMetrics.deliveriesTotal.WithLabelValues("success", "auto")); got != 1 {
		t.Errorf("Expected 1 successful delivery, got %f", got)
	}
	if got := testutil.CollectAndCount(collector.deliveryMetrics.deliveryDuration); got != 2 {
		t.Errorf("Expected 2 histogram series, got %d", got)
	}

	collector.SetInFlight(true)
	if got := testutil.ToFloat64(collector.deliveryMetrics.inFlight); got != 1 {
		t.Errorf("Expected in-flight=1, got %f", got)
	}
	collector.SetInFlight(false)
	if got := testutil.ToFloat64(collector.deliveryMetrics.inFlight); got != 0 {
		t.Errorf("Expected in-flight=0, got %f", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordCapture("stored")
	if got := testutil.ToFloat64(collector.captureMetrics.capturesTotal.WithLabelValues("stored")); got != 0 {
		t.Errorf("Expected no recording when disabled, got %f", got)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector

	// must not panic
	collector.UpdateStore(1, 1)
	collector.RecordEviction("capacity")
	collector.RecordDrift(0)
	collector.RecordMaintenance("prune", "error")
	collector.RecordCapture("stored")
	collector.RecordDelivery("success", "auto", time.Millisecond)
	collector.SetInFlight(true)
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordCapture("stored")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_backlog_captures_total") {
		t.Errorf("Expected captures metric in output, got:\n%s", rec.Body.String())
	}
}
