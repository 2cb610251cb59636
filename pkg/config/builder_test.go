package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with defaults and a test
// transport endpoint. The resulting configuration is valid.
func NewTestConfig() *ConfigBuilder {
	cfg := Defaults()
	cfg.Transport.URL = "http://127.0.0.1:8080/post"
	cfg.History.Backend = "memory"
	return &ConfigBuilder{cfg: *cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithDatabasePath sets the database directory.
func (b *ConfigBuilder) WithDatabasePath(path string) *ConfigBuilder {
	b.cfg.Database.Path = path
	return b
}

// WithCaps sets the record count and size caps.
func (b *ConfigBuilder) WithCaps(records int, sizeMB int64) *ConfigBuilder {
	b.cfg.Database.MaxRecordCount = records
	b.cfg.Database.MaxDatabaseSizeMB = sizeMB
	return b
}

// WithRetry sets the retry interval and limit.
func (b *ConfigBuilder) WithRetry(interval time.Duration, limit int) *ConfigBuilder {
	b.cfg.Delivery.RetryInterval = interval
	b.cfg.Delivery.RetryLimit = limit
	return b
}

// WithDeduplication sets the deduplication strategy string.
func (b *ConfigBuilder) WithDeduplication(strategy string) *ConfigBuilder {
	b.cfg.Database.Deduplication = strategy
	return b
}

// WithLogLevel sets the logging level.
func (b *ConfigBuilder) WithLogLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}
