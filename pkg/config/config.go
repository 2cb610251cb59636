package config

import "time"

// Config is the root configuration structure for the crash-report backlog.
// It contains every section needed to run the offline database, the
// delivery loop, the transport and the supporting telemetry.
type Config struct {
	// Database contains the offline record store settings including the
	// storage directory, capacity caps and deduplication strategy.
	Database DatabaseConfig `yaml:"database"`

	// Client contains capture-side settings such as the per-minute report limit.
	Client ClientConfig `yaml:"client"`

	// Delivery contains the retry loop settings.
	Delivery DeliveryConfig `yaml:"delivery"`

	// Transport contains the HTTP submission endpoint settings.
	Transport TransportConfig `yaml:"transport"`

	// History contains the delivery attempt log settings.
	History HistoryConfig `yaml:"history"`

	// Maintenance contains cron schedules for background upkeep jobs.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Server contains the local HTTP server settings.
	Server ServerConfig `yaml:"server"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Reload controls hot reloading of this file.
	Reload ReloadConfig `yaml:"reload"`
}

// DatabaseConfig contains configuration for the offline record store.
type DatabaseConfig struct {
	// Enabled turns the offline database on. When false, captured reports
	// are neither persisted nor retried.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the directory holding record files.
	// Default: "./data/reports"
	Path string `yaml:"path"`

	// CreateDatabase creates Path when it does not exist.
	// Default: true
	CreateDatabase bool `yaml:"create_database"`

	// MaxRecordCount caps the number of stored records. 0 means unlimited.
	// Default: 8
	MaxRecordCount int `yaml:"max_record_count"`

	// MaxDatabaseSizeMB caps the total record size in megabytes. 0 means
	// unlimited.
	// Default: 0
	MaxDatabaseSizeMB int64 `yaml:"max_database_size_mb"`

	// Deduplication lists the fields that make two reports identical, as
	// "|"-separated flags: default, classifier, message, library_name.
	// "none" disables deduplication.
	// Default: "none"
	Deduplication string `yaml:"deduplication"`

	// RetryOrder selects which record is delivered and evicted first:
	// "fifo" (oldest first) or "lifo" (newest first).
	// Default: "fifo"
	RetryOrder string `yaml:"retry_order"`
}

// MaxDatabaseSizeBytes returns the size cap in bytes.
func (c DatabaseConfig) MaxDatabaseSizeBytes() int64 {
	return c.MaxDatabaseSizeMB * 1024 * 1024
}

// ClientConfig contains capture-side configuration.
type ClientConfig struct {
	// ReportPerMin limits accepted reports per rolling minute. 0 disables
	// the limit.
	// Default: 50
	ReportPerMin int `yaml:"report_per_min"`
}

// DeliveryConfig contains configuration for the retry loop.
type DeliveryConfig struct {
	// AutoSend starts the periodic retry loop.
	// Default: true
	AutoSend bool `yaml:"auto_send"`

	// RetryInterval is the pause between delivery ticks.
	// Default: 60s
	RetryInterval time.Duration `yaml:"retry_interval"`

	// RetryLimit is the number of failed attempts a record may accumulate
	// before it is dropped. A record is removed on failure number
	// RetryLimit+1.
	// Default: 3
	RetryLimit int `yaml:"retry_limit"`
}

// TransportConfig contains configuration for the HTTP submission endpoint.
type TransportConfig struct {
	// URL is the submission endpoint. Empty disables delivery.
	URL string `yaml:"url"`

	// Token is sent as a bearer token when non-empty.
	Token string `yaml:"token"`

	// Timeout bounds a single submission.
	// Default: 15s
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryConfig contains configuration for the delivery attempt log.
type HistoryConfig struct {
	// Enabled turns attempt logging on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains the SQL backend settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Retention is how long attempts are kept. 0 keeps them forever.
	// Default: 168h
	Retention time.Duration `yaml:"retention"`
}

// SQLiteConfig contains SQLite settings for the history log.
type SQLiteConfig struct {
	// Driver is the database/sql driver name: "sqlite" (pure Go) or
	// "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file.
	// Default: "./data/history.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`
}

// MaintenanceConfig contains cron schedules for background jobs. An empty
// schedule disables the job.
type MaintenanceConfig struct {
	// ReconcileSchedule runs the on-disk consistency check.
	// Default: "*/15 * * * *"
	ReconcileSchedule string `yaml:"reconcile_schedule"`

	// PruneSchedule prunes history older than history.retention.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// ServerConfig contains configuration for the local HTTP server started by
// `backlog run`. It accepts reports and serves metrics and health probes.
type ServerConfig struct {
	// Enabled starts the server.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the TCP address to bind.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response, including a synchronous flush.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps a submitted report.
	// Default: 1048576
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// APIKeys guard the /v1 endpoints. Empty leaves them open. Probes and
	// metrics are never guarded.
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig is one key accepted by the local server.
type APIKeyConfig struct {
	// Name identifies the key in logs.
	Name string `yaml:"name"`

	// Key is the secret presented as a bearer token or X-API-Key.
	Key string `yaml:"key"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains configuration for structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: json, text or console.
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains configuration for Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "backlog"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	Subsystem string `yaml:"subsystem"`

	// DeliveryDurationBuckets defines histogram buckets for delivery
	// duration (seconds).
	DeliveryDurationBuckets []float64 `yaml:"delivery_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration. Spans are
// exported over OTLP/gRPC.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is the sampling strategy: always, never or ratio.
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled by the ratio sampler.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name reported in traces.
	// Default: "backlog"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// ReloadConfig controls configuration hot reload.
type ReloadConfig struct {
	// Enabled watches the configuration file and applies runtime-safe
	// settings when it changes.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Debounce is the quiet period before a change is applied.
	// Default: 250ms
	Debounce time.Duration `yaml:"debounce"`
}
