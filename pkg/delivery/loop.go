package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/telemetry/logging"
	"mercator-hq/backlog/pkg/telemetry/metrics"
	"mercator-hq/backlog/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultInterval is the tick interval used when none is configured.
const DefaultInterval = time.Minute

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval.Store(int64(d))
		}
	}
}

// WithAutoSend enables or disables periodic ticking. Flush works either way.
func WithAutoSend(enabled bool) Option {
	return func(l *Loop) {
		l.autoSend = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(l *Loop) {
		l.metrics = collector
	}
}

// WithClock overrides the clock used to time attempts.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// WithTracer traces each attempt and flush. A nil tracer records nothing.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(l *Loop) {
		l.tracer = tracer
	}
}

// WithObserver registers a callback run after every attempt.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		l.observers = append(l.observers, o)
	}
}

// Loop is the single-flight delivery driver.
type Loop struct {
	queue     Queue
	transport Transport
	interval  atomic.Int64
	autoSend  bool
	reset     chan struct{}

	// slot holds a token while a delivery or flush is outstanding.
	slot chan struct{}
	wg   sync.WaitGroup

	logger    *slog.Logger
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	now       func() time.Time
	observers []Observer
}

// NewLoop creates a loop over queue and transport.
func NewLoop(queue Queue, transport Transport, opts ...Option) *Loop {
	l := &Loop{
		queue:     queue,
		transport: transport,
		autoSend:  true,
		reset:     make(chan struct{}, 1),
		slot:      make(chan struct{}, 1),
		logger:    slog.Default(),
		now:       time.Now,
	}
	l.interval.Store(int64(DefaultInterval))
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "delivery")
	return l
}

// Interval returns the current tick interval.
func (l *Loop) Interval() time.Duration {
	return time.Duration(l.interval.Load())
}

// SetInterval changes the tick interval of a running loop.
func (l *Loop) SetInterval(d time.Duration) {
	if d <= 0 || time.Duration(l.interval.Swap(int64(d))) == d {
		return
	}
	select {
	case l.reset <- struct{}{}:
	default:
	}
}

// InFlight reports whether a delivery is outstanding.
func (l *Loop) InFlight() bool {
	return len(l.slot) > 0
}

// Run ticks immediately and then every interval until ctx is done, then
// waits for the outstanding delivery. With auto send disabled it only
// waits for ctx.
func (l *Loop) Run(ctx context.Context) error {
	if !l.autoSend {
		l.logger.Info("Automatic delivery disabled")
		<-ctx.Done()
		return nil
	}

	l.logger.Info("Delivery loop started", "interval", l.Interval())

	ticker := time.NewTicker(l.Interval())
	defer ticker.Stop()

	l.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.Wait()
			l.logger.Info("Delivery loop stopped")
			return nil
		case <-l.reset:
			ticker.Reset(l.Interval())
			l.logger.Info("Delivery interval changed", "interval", l.Interval())
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick starts one asynchronous delivery. It returns false, doing nothing,
// when a delivery is already outstanding or the queue has nothing to send.
func (l *Loop) Tick(ctx context.Context) bool {
	select {
	case l.slot <- struct{}{}:
	default:
		l.logger.Debug("Delivery outstanding, skipping tick")
		return false
	}

	rec, ok := l.queue.PopNext()
	if !ok {
		<-l.slot
		return false
	}

	l.metrics.SetInFlight(true)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.releaseSlot()

		a := l.attempt(ctx, rec, ModeAuto, nil)
		if err := l.queue.Release(rec, a.Outcome); err != nil {
			l.logger.Warn("Failed to release record", "record_id", rec.ID, "error", err)
		}
		l.notify(ctx, a)
	}()
	return true
}

// Wait blocks until the outstanding delivery, if any, has been released.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// Flush sends every stored record once. Each record is removed from the
// queue before it is sent, so failed records are not retried. Flush waits
// for an outstanding tick delivery to finish first.
func (l *Loop) Flush(ctx context.Context) (FlushSummary, error) {
	var summary FlushSummary

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return summary, ctx.Err()
	}
	l.metrics.SetInFlight(true)
	defer l.releaseSlot()

	ctx, span := l.tracer.Start(ctx, "delivery.flush")
	defer span.End()

	for ctx.Err() == nil {
		rec, ok := l.queue.PopNext()
		if !ok {
			break
		}

		payload, loadErr := rec.Payload()
		if err := l.queue.Delete(rec); err != nil {
			l.logger.Warn("Failed to delete record before flush", "record_id", rec.ID, "error", err)
		}

		a := l.attempt(ctx, rec, ModeFlush, func() ([]byte, error) { return payload, loadErr })
		summary.Attempted++
		if a.Outcome == database.OutcomeSuccess {
			summary.Delivered++
		}
		l.notify(ctx, a)
	}

	l.logger.Info("Flush finished",
		"attempted", summary.Attempted,
		"delivered", summary.Delivered,
	)
	span.SetAttributes(
		attribute.Int("backlog.flush.attempted", summary.Attempted),
		attribute.Int("backlog.flush.delivered", summary.Delivered),
	)
	tracing.SetStatus(span, ctx.Err())
	return summary, ctx.Err()
}

func (l *Loop) releaseSlot() {
	l.metrics.SetInFlight(false)
	<-l.slot
}

// attempt sends one record and returns what happened. load overrides how
// the payload is read.
func (l *Loop) attempt(ctx context.Context, rec *database.Record, mode string, load func() ([]byte, error)) Attempt {
	a := Attempt{
		RecordID:   rec.ID,
		Hash:       rec.Hash,
		Duplicates: rec.DuplicateCount(),
		Retry:      rec.Retries(),
		Mode:       mode,
		StartedAt:  l.now(),
	}

	ctx, span := l.tracer.Start(ctx, "delivery.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.RecordAttributes(rec.ID, rec.Hash, a.Duplicates, a.Retry)...),
		trace.WithAttributes(attribute.String(tracing.AttrDeliveryMode, mode)),
	)
	defer span.End()

	ctx = logging.WithMode(logging.WithAttempt(logging.WithRecordID(ctx, rec.ID), a.Retry+1), mode)
	log := l.logger.With(logging.Fields(ctx)...)

	if load == nil {
		load = rec.Payload
	}
	payload, err := load()
	if err != nil {
		a.Outcome = database.OutcomeFailure
		a.Err = fmt.Errorf("payload unavailable: %w", err)
		log.Warn("Record payload missing", "error", err)
		l.finish(ctx, &a)
		return a
	}

	result := l.transport.Deliver(ctx, Envelope{
		RecordID:    rec.ID,
		Payload:     payload,
		Attachments: rec.Attachments(),
		Duplicates:  a.Duplicates,
		Retry:       a.Retry,
	})

	a.Outcome = result.Status.Outcome()
	a.StatusCode = result.StatusCode
	a.Err = result.Err

	// an attempt cut short by shutdown does not count against the record
	if a.Outcome != database.OutcomeSuccess && ctx.Err() != nil {
		a.Outcome = database.OutcomeThrottled
		if a.Err == nil {
			a.Err = ctx.Err()
		}
	}

	l.finish(ctx, &a)

	switch {
	case a.Outcome == database.OutcomeSuccess:
		log.Info("Record delivered", "duplicates", a.Duplicates, "duration", a.Duration)
	case errors.Is(a.Err, context.Canceled):
		log.Info("Delivery interrupted", "duration", a.Duration)
	default:
		log.Warn("Delivery failed",
			"outcome", a.Outcome.String(),
			"status_code", a.StatusCode,
			"error", a.Err,
			"duration", a.Duration,
		)
	}
	return a
}

func (l *Loop) finish(ctx context.Context, a *Attempt) {
	a.Duration = l.now().Sub(a.StartedAt)
	l.metrics.RecordDelivery(a.Outcome.String(), a.Mode, a.Duration)

	span := trace.SpanFromContext(ctx)
	tracing.SetOutcome(span, a.Outcome.String(), a.StatusCode)
	if a.Outcome == database.OutcomeSuccess {
		tracing.SetStatus(span, nil)
	} else {
		tracing.SetStatus(span, a.Err)
	}
}

func (l *Loop) notify(ctx context.Context, a Attempt) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range l.observers {
		o(ctx, a)
	}
}
