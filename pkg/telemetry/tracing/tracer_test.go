package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"mercator-hq/backlog/pkg/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tracer := NewWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { tracer.Shutdown(context.Background()) })
	return tracer, recorder
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "disabled", cfg: &config.TracingConfig{Enabled: false}},
		{
			name: "ratio sampler",
			cfg: &config.TracingConfig{
				Enabled:     true,
				Sampler:     SamplerRatio,
				SampleRatio: 0.5,
				Endpoint:    "localhost:4317",
				ServiceName: "backlog-test",
				Insecure:    true,
			},
			wantEnabled: true,
		},
		{
			name: "bad ratio",
			cfg: &config.TracingConfig{
				Enabled:     true,
				Sampler:     SamplerRatio,
				SampleRatio: 2,
				Endpoint:    "localhost:4317",
			},
			wantErr: true,
		},
		{
			name: "unknown sampler",
			cfg: &config.TracingConfig{
				Enabled:  true,
				Sampler:  "sometimes",
				Endpoint: "localhost:4317",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.cfg, "test")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			defer tracer.Shutdown(context.Background())

			if tracer.Enabled() != tt.wantEnabled {
				t.Errorf("expected Enabled() = %v, got %v", tt.wantEnabled, tracer.Enabled())
			}
		})
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer

	ctx, span := tracer.Start(context.Background(), "noop")
	span.End()

	if TraceID(ctx) != "" {
		t.Errorf("expected no trace id from a nil tracer, got %q", TraceID(ctx))
	}
	if tracer.Enabled() {
		t.Error("expected nil tracer to be disabled")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

func TestStart_RecordsSpans(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := tracer.Start(ctx, "child")
	child.SetAttributes(RecordAttributes("rec-1", "abc", 3, 1)...)
	SetOutcome(child, "failure", 500)
	SetStatus(child, errors.New("boom"))
	child.End()
	parent.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}

	got := spans[0]
	if got.Name() != "child" {
		t.Fatalf("expected child to end first, got %q", got.Name())
	}
	if got.Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("expected child to be parented to the first span")
	}
	if got.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", got.Status().Code)
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range got.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrRecordID].AsString() != "rec-1" {
		t.Errorf("expected record id attribute, got %v", attrs[AttrRecordID])
	}
	if attrs[AttrRecordDuplicates].AsInt64() != 3 {
		t.Errorf("expected duplicates 3, got %v", attrs[AttrRecordDuplicates])
	}
	if attrs[AttrHTTPStatusCode].AsInt64() != 500 {
		t.Errorf("expected status code 500, got %v", attrs[AttrHTTPStatusCode])
	}
	if attrs[AttrDeliveryOutcome].AsString() != "failure" {
		t.Errorf("expected outcome failure, got %v", attrs[AttrDeliveryOutcome])
	}
}

func TestSetOutcome_SkipsMissingStatusCode(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	_, span := tracer.Start(context.Background(), "attempt")
	SetOutcome(span, "throttled", 0)
	SetStatus(span, nil)
	span.End()

	got := recorder.Ended()[0]
	for _, kv := range got.Attributes() {
		if kv.Key == AttrHTTPStatusCode {
			t.Errorf("expected no status code attribute, got %v", kv.Value)
		}
	}
	if got.Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", got.Status().Code)
	}
}

func TestInjectExtract(t *testing.T) {
	tracer, _ := newRecordingTracer(t)

	ctx, span := tracer.Start(context.Background(), "outgoing")
	defer span.End()

	headers := http.Header{}
	Inject(ctx, headers)
	if headers.Get("traceparent") == "" {
		t.Fatal("expected traceparent header to be injected")
	}

	extracted := Extract(context.Background(), headers)
	if got, want := TraceID(extracted), TraceID(ctx); got != want {
		t.Errorf("expected extracted trace id %s, got %s", want, got)
	}
}

func TestExtract_NoHeaders(t *testing.T) {
	ctx := Extract(context.Background(), http.Header{})
	if TraceID(ctx) != "" {
		t.Errorf("expected no trace id, got %q", TraceID(ctx))
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.25, false},
		{SamplerRatio, -0.1, true},
		{"adaptive", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			sampler, err := createSampler(tt.strategy, tt.ratio)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("createSampler() failed: %v", err)
			}
			if sampler == nil {
				t.Fatal("expected sampler, got nil")
			}
		})
	}
}
