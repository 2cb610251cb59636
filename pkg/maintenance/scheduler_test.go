package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/history"
	"mercator-hq/backlog/pkg/report"
	"mercator-hq/backlog/pkg/telemetry/metrics"
)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReconciler struct {
	err   error
	calls int
}

func (f *fakeReconciler) Reconcile(ctx context.Context) (*database.Consistency, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &database.Consistency{WithinLimits: true}, nil
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		pruner      Pruner
		wantRunning bool
		wantError   bool
		wantJobs    []string
	}{
		{
			name:        "both jobs",
			cfg:         Config{ReconcileSchedule: "*/15 * * * *", PruneSchedule: "0 3 * * *", Retention: time.Hour},
			pruner:      history.NewMemoryStorage(),
			wantRunning: true,
			wantJobs:    []string{JobReconcile, JobPrune},
		},
		{
			name:        "prune without history",
			cfg:         Config{ReconcileSchedule: "0 * * * *", PruneSchedule: "0 3 * * *", Retention: time.Hour},
			wantRunning: true,
			wantJobs:    []string{JobReconcile},
		},
		{
			name:        "prune without retention",
			cfg:         Config{PruneSchedule: "0 3 * * *"},
			pruner:      history.NewMemoryStorage(),
			wantRunning: false,
		},
		{
			name:        "empty schedules",
			cfg:         Config{},
			wantRunning: false,
		},
		{
			name:      "invalid schedule",
			cfg:       Config{ReconcileSchedule: "invalid cron"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(tt.cfg, &fakeReconciler{}, tt.pruner, WithLogger(discardLogger()))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}
			for _, job := range tt.wantJobs {
				next := s.NextRun(job)
				if next == nil {
					t.Errorf("NextRun(%s) returned nil", job)
				} else if !next.After(time.Now()) {
					t.Errorf("NextRun(%s) = %v, expected a future time", job, next)
				}
			}
			s.Stop()
			if s.IsRunning() {
				t.Error("Expected scheduler stopped")
			}
		})
	}
}

func TestScheduler_StopsWithContext(t *testing.T) {
	s := NewScheduler(Config{ReconcileSchedule: "0 * * * *"}, &fakeReconciler{}, nil, WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("Expected scheduler to stop with its context")
	}
}

func TestScheduler_RunReconcile(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(database.Config{
		Enabled:        true,
		Path:           dir,
		CreateDatabase: true,
	}, database.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := db.Add(report.New("boom")); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "leftover.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test", Subsystem: "backlog"}, registry)

	s := NewScheduler(Config{}, db, nil, WithLogger(discardLogger()), WithMetrics(collector))
	c, err := s.RunReconcile(context.Background())
	if err != nil {
		t.Fatalf("RunReconcile() failed: %v", err)
	}
	if c.OrphansRemoved != 1 || c.Records != 1 || c.Drift != 0 {
		t.Errorf("Unexpected consistency: %+v", c)
	}

	count, err := testutil.GatherAndCount(registry, "test_backlog_maintenance_runs_total")
	if err != nil {
		t.Fatalf("GatherAndCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one maintenance series, got %d", count)
	}
}

func TestScheduler_RunReconcileError(t *testing.T) {
	reconciler := &fakeReconciler{err: errors.New("disk gone")}
	s := NewScheduler(Config{}, reconciler, nil, WithLogger(discardLogger()))

	if _, err := s.RunReconcile(context.Background()); err == nil {
		t.Error("Expected reconcile error to propagate")
	}
	if reconciler.calls != 1 {
		t.Errorf("Expected 1 call, got %d", reconciler.calls)
	}
}

func TestScheduler_RunPrune(t *testing.T) {
	store := history.NewMemoryStorage()
	for i := 0; i < 5; i++ {
		store.Record(context.Background(), &history.Attempt{
			RecordID:    "rec",
			Outcome:     "success",
			AttemptedAt: epoch.Add(time.Duration(-i) * 24 * time.Hour),
		})
	}

	s := NewScheduler(Config{Retention: 48 * time.Hour}, &fakeReconciler{}, store,
		WithLogger(discardLogger()),
		WithClock(func() time.Time { return epoch }),
	)

	deleted, err := s.RunPrune(context.Background())
	if err != nil {
		t.Fatalf("RunPrune() failed: %v", err)
	}
	// attempts at -3d and -4d are older than the cutoff; -2d sits on it
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	skipped := NewScheduler(Config{}, &fakeReconciler{}, store, WithLogger(discardLogger()))
	if n, err := skipped.RunPrune(context.Background()); n != 0 || err != nil {
		t.Errorf("Expected prune skipped without retention, got %d, %v", n, err)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Defaults()
	cfg.History.Retention = 24 * time.Hour

	got := ConfigFrom(cfg)
	if got.ReconcileSchedule != cfg.Maintenance.ReconcileSchedule || got.Retention != 24*time.Hour {
		t.Errorf("Unexpected config: %+v", got)
	}

	cfg.History.Enabled = false
	if ConfigFrom(cfg).Retention != 0 {
		t.Error("Expected no retention without history")
	}
}
