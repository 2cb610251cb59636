package config

import "time"

// Default configuration values.
const (
	DefaultDatabaseEnabled        = true
	DefaultDatabasePath           = "./data/reports"
	DefaultDatabaseCreate         = true
	DefaultDatabaseMaxRecordCount = 8
	DefaultDatabaseDeduplication  = "none"
	DefaultDatabaseRetryOrder     = "fifo"

	DefaultReportPerMin = 50

	DefaultAutoSend      = true
	DefaultRetryInterval = 60 * time.Second
	DefaultRetryLimit    = 3

	DefaultTransportTimeout = 15 * time.Second

	DefaultHistoryEnabled           = true
	DefaultHistoryBackend           = "sqlite"
	DefaultHistorySQLiteDriver      = "sqlite"
	DefaultHistorySQLitePath        = "./data/history.db"
	DefaultHistorySQLiteBusyTimeout = 5 * time.Second
	DefaultHistorySQLiteWALMode     = true
	DefaultHistoryRetention         = 7 * 24 * time.Hour

	DefaultReconcileSchedule = "*/15 * * * *"
	DefaultPruneSchedule     = "0 3 * * *"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultServerEnabled         = true
	DefaultServerListenAddress   = "127.0.0.1:9464"
	DefaultServerReadTimeout     = 10 * time.Second
	DefaultServerWriteTimeout    = 60 * time.Second
	DefaultServerShutdownTimeout = 10 * time.Second
	DefaultServerMaxBodyBytes    = 1 << 20

	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "backlog"

	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "backlog"
	DefaultTracingTimeout     = 10 * time.Second

	DefaultReloadDebounce = 250 * time.Millisecond
)

// Defaults returns a configuration with every default applied, including
// boolean switches and the numeric settings where 0 is meaningful
// (unlimited or disabled). LoadConfig decodes YAML on top of it so that an
// explicit false or 0 in the file survives.
func Defaults() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Enabled:        DefaultDatabaseEnabled,
			CreateDatabase: DefaultDatabaseCreate,
			MaxRecordCount: DefaultDatabaseMaxRecordCount,
		},
		Client: ClientConfig{
			ReportPerMin: DefaultReportPerMin,
		},
		Delivery: DeliveryConfig{
			AutoSend:   DefaultAutoSend,
			RetryLimit: DefaultRetryLimit,
		},
		History: HistoryConfig{
			Enabled: DefaultHistoryEnabled,
			SQLite: SQLiteConfig{
				WALMode: DefaultHistorySQLiteWALMode,
			},
		},
		Server: ServerConfig{
			Enabled: DefaultServerEnabled,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
			Tracing: TracingConfig{
				SampleRatio: DefaultTracingSampleRatio,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Boolean
// switches and fields where 0 has a meaning are left untouched; see Defaults.
//
// Schedules are only defaulted when the whole maintenance section is empty,
// so a single job can be disabled by leaving its schedule blank.
func ApplyDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Database.Deduplication == "" {
		cfg.Database.Deduplication = DefaultDatabaseDeduplication
	}
	if cfg.Database.RetryOrder == "" {
		cfg.Database.RetryOrder = DefaultDatabaseRetryOrder
	}

	// Delivery defaults
	if cfg.Delivery.RetryInterval == 0 {
		cfg.Delivery.RetryInterval = DefaultRetryInterval
	}

	// Transport defaults
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = DefaultTransportTimeout
	}

	// History defaults
	if cfg.History.Backend == "" {
		cfg.History.Backend = DefaultHistoryBackend
	}
	if cfg.History.SQLite.Driver == "" {
		cfg.History.SQLite.Driver = DefaultHistorySQLiteDriver
	}
	if cfg.History.SQLite.Path == "" {
		cfg.History.SQLite.Path = DefaultHistorySQLitePath
	}
	if cfg.History.SQLite.BusyTimeout == 0 {
		cfg.History.SQLite.BusyTimeout = DefaultHistorySQLiteBusyTimeout
	}
	if cfg.History.Retention == 0 {
		cfg.History.Retention = DefaultHistoryRetention
	}

	// Maintenance defaults
	if cfg.Maintenance.ReconcileSchedule == "" && cfg.Maintenance.PruneSchedule == "" {
		cfg.Maintenance.ReconcileSchedule = DefaultReconcileSchedule
		cfg.Maintenance.PruneSchedule = DefaultPruneSchedule
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultServerListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultServerMaxBodyBytes
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}

	// Reload defaults
	if cfg.Reload.Debounce == 0 {
		cfg.Reload.Debounce = DefaultReloadDebounce
	}
}
