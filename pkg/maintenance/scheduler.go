package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/telemetry/metrics"
)

// Job names, as used in logs and metrics.
const (
	JobReconcile = "reconcile"
	JobPrune     = "prune"
)

// Reconciler checks the store against the disk. *database.Database
// satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context) (*database.Consistency, error)
}

// Pruner deletes history older than a cutoff. history.Storage satisfies it.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds the job schedules.
type Config struct {
	ReconcileSchedule string
	PruneSchedule     string
	// Retention is the history age kept by the prune job. 0 disables it.
	Retention time.Duration
}

// ConfigFrom extracts the scheduler settings from cfg.
func ConfigFrom(cfg *config.Config) Config {
	c := Config{
		ReconcileSchedule: cfg.Maintenance.ReconcileSchedule,
		PruneSchedule:     cfg.Maintenance.PruneSchedule,
	}
	if cfg.History.Enabled {
		c.Retention = cfg.History.Retention
	}
	return c
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Scheduler) {
		s.metrics = collector
	}
}

// WithClock overrides the clock used to compute the prune cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler runs the maintenance jobs on their cron schedules.
type Scheduler struct {
	config     Config
	reconciler Reconciler
	pruner     Pruner

	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	running bool

	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewScheduler creates a scheduler. pruner may be nil when no history is
// kept.
func NewScheduler(cfg Config, reconciler Reconciler, pruner Pruner, opts ...Option) *Scheduler {
	s := &Scheduler{
		config:     cfg,
		reconciler: reconciler,
		pruner:     pruner,
		entries:    make(map[string]cron.EntryID),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "maintenance")
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return s
}

// Start schedules the configured jobs and stops them when ctx is done.
// With no job scheduled it does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("maintenance scheduler already running")
	}

	jobs := map[string]struct {
		schedule string
		enabled  bool
		run      func()
	}{
		JobReconcile: {
			schedule: s.config.ReconcileSchedule,
			enabled:  s.reconciler != nil,
			run:      func() { s.RunReconcile(ctx) },
		},
		JobPrune: {
			schedule: s.config.PruneSchedule,
			enabled:  s.pruner != nil && s.config.Retention > 0,
			run:      func() { s.RunPrune(ctx) },
		},
	}

	for name, job := range jobs {
		if job.schedule == "" || !job.enabled {
			s.logger.Info("Maintenance job not scheduled", "job", name)
			continue
		}
		if _, err := cron.ParseStandard(job.schedule); err != nil {
			s.removeAllLocked()
			return fmt.Errorf("invalid cron schedule %q for %s: %w", job.schedule, name, err)
		}
		id, err := s.cron.AddFunc(job.schedule, job.run)
		if err != nil {
			s.removeAllLocked()
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
		s.entries[name] = id
	}

	if len(s.entries) == 0 {
		return nil
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Maintenance scheduler started",
		"reconcile_schedule", s.config.ReconcileSchedule,
		"prune_schedule", s.config.PruneSchedule,
		"retention", s.config.Retention,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Maintenance scheduler stopped")
}

// IsRunning reports whether any job is scheduled and the scheduler started.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next activation of job, or nil when it is not
// scheduled.
func (s *Scheduler) NextRun(job string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[job]
	if !ok || !s.running {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// RunReconcile runs the reconcile job once.
func (s *Scheduler) RunReconcile(ctx context.Context) (*database.Consistency, error) {
	c, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.metrics.RecordMaintenance(JobReconcile, "error")
		s.logger.Error("Reconcile failed", "error", err)
		return nil, err
	}

	s.metrics.RecordMaintenance(JobReconcile, "success")
	if !c.WithinLimits {
		s.logger.Warn("Offline database exceeds its limits",
			"records", c.Records,
			"indexed_bytes", c.IndexedBytes,
		)
	}
	return c, nil
}

// RunPrune runs the prune job once. It returns 0 without touching the
// history when no pruner or retention is configured.
func (s *Scheduler) RunPrune(ctx context.Context) (int64, error) {
	if s.pruner == nil || s.config.Retention <= 0 {
		s.metrics.RecordMaintenance(JobPrune, "skipped")
		return 0, nil
	}

	cutoff := s.now().Add(-s.config.Retention)
	deleted, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		s.metrics.RecordMaintenance(JobPrune, "error")
		s.logger.Error("History prune failed", "error", err)
		return 0, err
	}

	s.metrics.RecordMaintenance(JobPrune, "success")
	if deleted > 0 {
		s.logger.Info("History pruned", "deleted_count", deleted, "cutoff", cutoff)
	} else {
		s.logger.Debug("History prune found nothing to delete")
	}
	return deleted, nil
}

func (s *Scheduler) removeAllLocked() {
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}
