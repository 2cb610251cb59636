package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/report"
	"mercator-hq/backlog/pkg/telemetry/metrics"
)

// Config configures an offline database.
type Config struct {
	// Enabled switches the database on.
	Enabled bool
	// Path is the storage directory.
	Path string
	// CreateDatabase creates Path if missing.
	CreateDatabase bool

	IndexConfig
}

// ConfigFrom converts the database and delivery sections of cfg.
func ConfigFrom(cfg *config.Config) (Config, error) {
	strategy, err := report.ParseStrategy(cfg.Database.Deduplication)
	if err != nil {
		return Config{}, err
	}
	order, err := ParseRetryOrder(cfg.Database.RetryOrder)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Enabled:        cfg.Database.Enabled,
		Path:           cfg.Database.Path,
		CreateDatabase: cfg.Database.CreateDatabase,
		IndexConfig: IndexConfig{
			MaxRecordCount:  cfg.Database.MaxRecordCount,
			MaxDatabaseSize: cfg.Database.MaxDatabaseSizeBytes(),
			RetryLimit:      cfg.Delivery.RetryLimit,
			RetryOrder:      order,
			Deduplication:   strategy,
		},
	}, nil
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(db *Database) {
		db.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(db *Database) {
		db.metrics = collector
	}
}

// WithClock overrides the clock used for timestamps. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(db *Database) {
		db.now = now
	}
}

// Database is the offline crash-report store: a directory of record files
// fronted by an in-memory Index.
type Database struct {
	cfg     Config
	store   *FileStore
	index   *Index
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// Open prepares the directory, loads every complete record from it,
// enforces the caps on what was loaded and sweeps files that belong to no
// record.
func Open(cfg Config, opts ...Option) (*Database, error) {
	db := &Database{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	db.logger = db.logger.With("component", "database")

	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrDisabled)
	}

	db.store = NewFileStore(cfg.Path, db.logger)
	db.store.now = db.now
	if err := db.store.Ensure(cfg.CreateDatabase); err != nil {
		return nil, err
	}

	db.index = NewIndex(db.store, cfg.IndexConfig, db.logger, db.metrics)

	records, err := db.store.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := db.index.Insert(rec); err != nil {
			db.logger.Warn("Skipping stored record", "record_id", rec.ID, "error", err)
		}
	}

	removed, err := db.index.sweep()
	if err != nil {
		db.logger.Warn("Orphan sweep failed", "error", err)
	}
	for i := 0; i < removed; i++ {
		db.metrics.RecordEviction("orphan")
	}

	db.logger.Info("Offline database opened",
		"path", db.store.Dir(),
		"records", db.index.Count(),
		"bytes", db.index.TotalSize(),
		"orphans_removed", removed,
		"retry_order", cfg.RetryOrder.String(),
		"deduplication", cfg.Deduplication.String(),
	)

	return db, nil
}

// Add stores a report. See Index.Add.
func (db *Database) Add(r *report.Report) (*Record, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = db.now().UTC()
	}
	return db.index.Add(r)
}

// Get returns the stored records in retry order.
func (db *Database) Get() []*Record {
	return db.index.Records()
}

// Count returns the number of stored records.
func (db *Database) Count() int {
	return db.index.Count()
}

// TotalSize returns the indexed size in bytes.
func (db *Database) TotalSize() int64 {
	return db.index.TotalSize()
}

// PopNext locks and returns the next record to deliver.
func (db *Database) PopNext() (*Record, bool) {
	return db.index.PopNext()
}

// Release applies a delivery outcome to a record returned by PopNext.
func (db *Database) Release(rec *Record, outcome Outcome) error {
	return db.index.Release(rec, outcome)
}

// Delete removes a record and its files.
func (db *Database) Delete(rec *Record) error {
	return db.index.Delete(rec)
}

// Clear removes every record and sweeps the directory.
func (db *Database) Clear() error {
	db.index.Clear()
	if _, err := db.index.sweep(); err != nil {
		return err
	}
	db.logger.Info("Offline database cleared", "path", db.store.Dir())
	return nil
}

// Dir returns the storage directory.
func (db *Database) Dir() string {
	return db.store.Dir()
}

// Config returns the database configuration.
func (db *Database) Config() Config {
	return db.cfg
}

// Consistency is the result of a Reconcile run.
type Consistency struct {
	CheckedAt      time.Time
	Records        int
	IndexedBytes   int64
	DiskBytes      int64
	Drift          int64
	InvalidDropped int
	OrphansRemoved int
	WithinLimits   bool
}

// Reconcile drops records whose payload disappeared, sweeps orphaned files
// and compares the indexed size with what is on disk.
func (db *Database) Reconcile(ctx context.Context) (*Consistency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a, err := db.index.reconcile()
	if err != nil {
		return nil, err
	}
	invalid, orphans := a.invalidDropped, a.orphansRemoved

	c := &Consistency{
		CheckedAt:      db.now(),
		Records:        a.records,
		IndexedBytes:   a.indexedBytes,
		DiskBytes:      a.diskBytes,
		InvalidDropped: invalid,
		OrphansRemoved: orphans,
	}
	c.Drift = c.DiskBytes - c.IndexedBytes
	c.WithinLimits = (db.cfg.MaxRecordCount == 0 || c.Records <= db.cfg.MaxRecordCount) &&
		(db.cfg.MaxDatabaseSize == 0 || c.IndexedBytes <= db.cfg.MaxDatabaseSize)

	db.metrics.RecordDrift(c.Drift)
	for i := 0; i < orphans; i++ {
		db.metrics.RecordEviction("orphan")
	}

	level := slog.LevelDebug
	if c.Drift != 0 || invalid > 0 || orphans > 0 {
		level = slog.LevelWarn
	}
	db.logger.Log(ctx, level, "Reconciled offline database",
		"records", c.Records,
		"indexed_bytes", c.IndexedBytes,
		"disk_bytes", c.DiskBytes,
		"drift_bytes", c.Drift,
		"invalid_dropped", invalid,
		"orphans_removed", orphans,
	)

	return c, nil
}
