package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/backlog/pkg/client"
	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/delivery"
	"mercator-hq/backlog/pkg/report"
	"mercator-hq/backlog/pkg/security/auth"
	"mercator-hq/backlog/pkg/telemetry/health"
	"mercator-hq/backlog/pkg/telemetry/metrics"
	"mercator-hq/backlog/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	client    *client.Client
	db        *database.Database
	delivered atomic.Int32
}

func newFixture(t *testing.T, reportPerMin int, index database.IndexConfig) *fixture {
	t.Helper()
	db, err := database.Open(database.Config{
		Enabled:        true,
		Path:           t.TempDir(),
		CreateDatabase: true,
		IndexConfig:    index,
	}, database.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	f := &fixture{db: db}
	transport := delivery.TransportFunc(func(ctx context.Context, env delivery.Envelope) delivery.Result {
		f.delivered.Add(1)
		return delivery.Result{Status: delivery.StatusSuccess}
	})
	f.client = client.New(db, transport, client.Config{ReportPerMin: reportPerMin},
		client.WithLogger(discardLogger()))
	t.Cleanup(f.client.Close)
	return f
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Enabled:         true,
		ListenAddress:   "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
		MaxBodyBytes:    4096,
	}
}

func postReport(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader(body)))
	return rec
}

func TestServer_Capture(t *testing.T) {
	f := newFixture(t, 0, database.IndexConfig{Deduplication: report.StrategyDefault})
	h := New(testServerConfig(), f.client, WithLogger(discardLogger())).Handler()

	body := `{"message":"boom","stackTrace":[{"funcName":"main.run"}]}`
	first := postReport(t, h, body)
	if first.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", first.Code, first.Body.String())
	}
	var resp CaptureResponse
	if err := json.NewDecoder(first.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if resp.RecordID == "" || resp.Duplicates != 1 {
		t.Errorf("Unexpected response %+v", resp)
	}
	if first.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request ID")
	}

	second := postReport(t, h, body)
	if err := json.NewDecoder(second.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if resp.Duplicates != 2 {
		t.Errorf("Expected duplicate to fold into the first record, got %+v", resp)
	}
	if f.db.Count() != 1 {
		t.Errorf("Expected 1 stored record, got %d", f.db.Count())
	}
}

func TestServer_CaptureErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"message":`, http.StatusBadRequest},
		{"invalid uuid", `{"uuid":"nope","message":"x"}`, http.StatusBadRequest},
		{"frame without function", `{"message":"x","stackTrace":[{"line":3}]}`, http.StatusBadRequest},
		{"numeric attribute", `{"message":"x","attributes":{"n":1}}`, http.StatusBadRequest},
		{"too large", `{"message":"` + strings.Repeat("x", 5000) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0, database.IndexConfig{})
			h := New(testServerConfig(), f.client, WithLogger(discardLogger())).Handler()

			rec := postReport(t, h, tt.body)
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
			if f.db.Count() != 0 {
				t.Errorf("Expected nothing stored, got %d", f.db.Count())
			}
		})
	}
}

func TestServer_CaptureRateLimited(t *testing.T) {
	f := newFixture(t, 1, database.IndexConfig{})
	h := New(testServerConfig(), f.client, WithLogger(discardLogger())).Handler()

	if rec := postReport(t, h, `{"message":"a"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	if rec := postReport(t, h, `{"message":"b"}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
}

func TestCaptureStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{client.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("store: %w", database.ErrDatabaseFull), http.StatusInsufficientStorage},
		{fmt.Errorf("store: %w", database.ErrRecordTooLarge), http.StatusRequestEntityTooLarge},
		{database.ErrInvalidRecord, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := captureStatus(tt.err); got != tt.code {
			t.Errorf("captureStatus(%v) = %d, want %d", tt.err, got, tt.code)
		}
	}
}

func TestServer_RecordsAndFlush(t *testing.T) {
	f := newFixture(t, 0, database.IndexConfig{})
	h := New(testServerConfig(), f.client, WithLogger(discardLogger())).Handler()

	for i := 0; i < 3; i++ {
		if rec := postReport(t, h, fmt.Sprintf(`{"message":"crash %d"}`, i)); rec.Code != http.StatusAccepted {
			t.Fatalf("Expected 202, got %d", rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/records", nil))
	var views []RecordView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(views))
	}
	if views[0].Size == 0 || views[0].Locked {
		t.Errorf("Unexpected record view %+v", views[0])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/flush", nil))
	var summary FlushResponse
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if summary.Attempted != 3 || summary.Delivered != 3 {
		t.Errorf("Expected 3/3 delivered, got %+v", summary)
	}
	if f.db.Count() != 0 || f.delivered.Load() != 3 {
		t.Errorf("Expected empty store after flush, got %d records and %d deliveries", f.db.Count(), f.delivered.Load())
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, 0, database.IndexConfig{})
	h := New(testServerConfig(), f.client, WithLogger(discardLogger())).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestServer_RequestIDPassthrough(t *testing.T) {
	f := newFixture(t, 0, database.IndexConfig{})
	h := New(testServerConfig(), f.client, WithLogger(discardLogger())).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected request ID abc-123, got %q", got)
	}
}

func TestServer_TraceContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := tracing.NewWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer tracer.Shutdown(context.Background())

	f := newFixture(t, 0, database.IndexConfig{})
	h := New(testServerConfig(), f.client, WithLogger(discardLogger()), WithTracer(tracer)).Handler()

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader(`{"message":"boom"}`))
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(TraceIDHeader); got != traceID {
		t.Errorf("Expected trace ID %s, got %q", traceID, got)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.SpanKind() != trace.SpanKindServer {
		t.Errorf("Expected server span, got %v", span.SpanKind())
	}
	if span.SpanContext().TraceID().String() != traceID {
		t.Errorf("Expected span to continue trace %s, got %s", traceID, span.SpanContext().TraceID())
	}

	var status int64
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key(tracing.AttrHTTPStatusCode) {
			status = kv.Value.AsInt64()
		}
	}
	if status != http.StatusAccepted {
		t.Errorf("Expected status attribute 202, got %d", status)
	}
}

func TestServer_APIKeys(t *testing.T) {
	f := newFixture(t, 0, database.IndexConfig{})
	validator := auth.NewValidator([]*auth.KeyInfo{{Name: "ci", Key: "secret", Enabled: true}})
	h := New(testServerConfig(), f.client,
		WithLogger(discardLogger()),
		WithAuth(validator),
		WithHealth(health.New(time.Second), health.VersionInfo{Version: "test"}),
	).Handler()

	if rec := postReport(t, h, `{"message":"boom"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without a key, got %d", rec.Code)
	}
	if f.db.Count() != 0 {
		t.Fatalf("Expected rejected report not to be stored, got %d records", f.db.Count())
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader(`{"message":"boom"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 with a key, got %d: %s", rec.Code, rec.Body.String())
	}

	probe := httptest.NewRecorder()
	h.ServeHTTP(probe, httptest.NewRequest(http.MethodGet, health.LivenessPath, nil))
	if probe.Code != http.StatusOK {
		t.Errorf("Expected probes to stay open, got %d", probe.Code)
	}
}

func TestServer_Recovery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	h := recoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if !strings.Contains(logs.String(), "Panic in handler") {
		t.Errorf("Expected panic to be logged, got %q", logs.String())
	}
}

func TestServer_MetricsAndHealth(t *testing.T) {
	f := newFixture(t, 0, database.IndexConfig{})
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, nil)
	checker := health.New(time.Second)
	checker.Register("database", health.DirCheck(f.db.Dir()))

	h := New(testServerConfig(), f.client,
		WithLogger(discardLogger()),
		WithMetrics(collector, "/metrics"),
		WithHealth(checker, health.VersionInfo{Version: "test"}),
	).Handler()

	for _, path := range []string{"/metrics", health.LivenessPath, health.ReadinessPath, health.VersionPath} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	f := newFixture(t, 0, database.IndexConfig{})
	srv := New(testServerConfig(), f.client, WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Addr() == nil {
		t.Fatal("Server did not bind")
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/v1/records")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Server did not stop")
	}
}
