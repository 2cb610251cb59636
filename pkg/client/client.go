package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/delivery"
	"mercator-hq/backlog/pkg/history"
	"mercator-hq/backlog/pkg/ratelimit"
	"mercator-hq/backlog/pkg/report"
	"mercator-hq/backlog/pkg/telemetry/metrics"
	"mercator-hq/backlog/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// ErrRateLimited is returned by Capture when the per-minute budget is spent.
var ErrRateLimited = errors.New("report rate limit reached")

// Capture results, as counted by the captures_total metric.
const (
	ResultStored      = "stored"
	ResultDuplicate   = "duplicate"
	ResultRateLimited = "rate_limited"
	ResultRejected    = "rejected"
	ResultError       = "error"
)

// Config holds the client settings that can change at runtime.
type Config struct {
	// ReportPerMin is the admission budget. 0 disables rate limiting.
	ReportPerMin int
	// AutoSend enables periodic delivery.
	AutoSend bool
	// RetryInterval is the delivery tick interval.
	RetryInterval time.Duration
}

// ConfigFrom extracts the client settings from cfg.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ReportPerMin:  cfg.Client.ReportPerMin,
		AutoSend:      cfg.Delivery.AutoSend,
		RetryInterval: cfg.Delivery.RetryInterval,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector, shared with the delivery loop.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithClock overrides the clock used for admission and timing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithTracer traces captures and delivery attempts.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithHistory records every delivery attempt into storage.
func WithHistory(storage history.Storage) Option {
	return func(c *Client) {
		c.history = storage
	}
}

// WithObserver registers an additional delivery observer.
func WithObserver(o delivery.Observer) Option {
	return func(c *Client) {
		c.observers = append(c.observers, o)
	}
}

// Client captures reports into the offline database and delivers them.
type Client struct {
	db       *database.Database
	watcher  *ratelimit.Watcher
	loop     *delivery.Loop
	recorder *history.Recorder

	history   history.Storage
	observers []delivery.Observer
	logger    *slog.Logger
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	now       func() time.Time
}

// New creates a client over an open database and a transport.
func New(db *database.Database, transport delivery.Transport, cfg Config, opts ...Option) *Client {
	c := &Client{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	baseLogger := c.logger
	c.logger = c.logger.With("component", "client")

	c.watcher = ratelimit.NewWatcher(cfg.ReportPerMin).WithClock(c.now)

	loopOpts := []delivery.Option{
		delivery.WithInterval(cfg.RetryInterval),
		delivery.WithAutoSend(cfg.AutoSend),
		delivery.WithLogger(baseLogger),
		delivery.WithMetrics(c.metrics),
		delivery.WithTracer(c.tracer),
		delivery.WithClock(c.now),
	}
	if c.history != nil {
		c.recorder = history.NewRecorder(c.history, history.RecorderConfig{}, baseLogger)
		loopOpts = append(loopOpts, delivery.WithObserver(c.recorder.Observe))
	}
	for _, o := range c.observers {
		loopOpts = append(loopOpts, delivery.WithObserver(o))
	}
	c.loop = delivery.NewLoop(db, transport, loopOpts...)

	return c
}

// Capture stores r for delivery. It returns the record r was stored in,
// which is an existing record when r was deduplicated.
func (c *Client) Capture(ctx context.Context, r *report.Report) (*database.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "client.capture")
	defer span.End()

	if !c.watcher.TryAdmit(c.now()) {
		c.metrics.RecordCapture(ResultRateLimited)
		span.SetAttributes(attribute.String("backlog.capture.result", ResultRateLimited))
		if c.watcher.ShouldWarn() {
			c.logger.WarnContext(ctx, "Report rate limit reached, dropping reports",
				"limit_per_minute", c.watcher.Limit(),
			)
			c.watcher.AcknowledgeWarning()
		}
		return nil, ErrRateLimited
	}

	rec, err := c.db.Add(r)
	if err != nil {
		if errors.Is(err, database.ErrDatabaseFull) || errors.Is(err, database.ErrRecordTooLarge) {
			c.metrics.RecordCapture(ResultRejected)
		} else {
			c.metrics.RecordCapture(ResultError)
		}
		err = fmt.Errorf("failed to store report: %w", err)
		tracing.SetStatus(span, err)
		return nil, err
	}

	result := ResultStored
	if rec.DuplicateCount() > 1 {
		result = ResultDuplicate
	}
	c.metrics.RecordCapture(result)
	span.SetAttributes(tracing.RecordAttributes(rec.ID, rec.Hash, rec.DuplicateCount(), rec.Retries())...)
	span.SetAttributes(attribute.String("backlog.capture.result", result))
	return rec, nil
}

// Start runs the delivery loop until ctx is done.
func (c *Client) Start(ctx context.Context) error {
	return c.loop.Run(ctx)
}

// Flush sends every stored record once, bypassing the retry policy.
func (c *Client) Flush(ctx context.Context) (delivery.FlushSummary, error) {
	return c.loop.Flush(ctx)
}

// SetReportLimit changes the per-minute admission budget.
func (c *Client) SetReportLimit(limit int) {
	c.watcher.Configure(limit)
	c.logger.Info("Report limit updated", "limit_per_minute", limit)
}

// Apply updates the runtime settings. Auto send cannot be toggled on a
// running client.
func (c *Client) Apply(cfg Config) {
	if cfg.ReportPerMin != c.watcher.Limit() {
		c.SetReportLimit(cfg.ReportPerMin)
	}
	c.loop.SetInterval(cfg.RetryInterval)
}

// Database returns the underlying database.
func (c *Client) Database() *database.Database {
	return c.db
}

// Close waits for the outstanding delivery and flushes the history queue.
// It does not close the database or the history storage.
func (c *Client) Close() {
	c.loop.Wait()
	if c.recorder != nil {
		c.recorder.Close()
	}
}
