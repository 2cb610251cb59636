package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "BACKLOG_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of Defaults, remaining zero values are filled
// by ApplyDefaults and the result is validated. Environment variables are
// not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML into a defaulted configuration without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention BACKLOG_SECTION_FIELD (e.g., BACKLOG_DATABASE_PATH).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv builds a configuration from defaults and environment
// variables only. It is used when no configuration file is given.
func LoadFromEnv() (*Config, error) {
	cfg := Defaults()
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Database overrides
	envBool("DATABASE_ENABLED", &cfg.Database.Enabled)
	envString("DATABASE_PATH", &cfg.Database.Path)
	envBool("DATABASE_CREATE_DATABASE", &cfg.Database.CreateDatabase)
	envInt("DATABASE_MAX_RECORD_COUNT", &cfg.Database.MaxRecordCount)
	if val := os.Getenv(EnvPrefix + "DATABASE_MAX_DATABASE_SIZE_MB"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Database.MaxDatabaseSizeMB = i
		}
	}
	envString("DATABASE_DEDUPLICATION", &cfg.Database.Deduplication)
	envString("DATABASE_RETRY_ORDER", &cfg.Database.RetryOrder)

	// Client overrides
	envInt("CLIENT_REPORT_PER_MIN", &cfg.Client.ReportPerMin)

	// Delivery overrides
	envBool("DELIVERY_AUTO_SEND", &cfg.Delivery.AutoSend)
	envDuration("DELIVERY_RETRY_INTERVAL", &cfg.Delivery.RetryInterval)
	envInt("DELIVERY_RETRY_LIMIT", &cfg.Delivery.RetryLimit)

	// Transport overrides
	envString("TRANSPORT_URL", &cfg.Transport.URL)
	envString("TRANSPORT_TOKEN", &cfg.Transport.Token)
	envDuration("TRANSPORT_TIMEOUT", &cfg.Transport.Timeout)

	// History overrides
	envBool("HISTORY_ENABLED", &cfg.History.Enabled)
	envString("HISTORY_BACKEND", &cfg.History.Backend)
	envString("HISTORY_SQLITE_DRIVER", &cfg.History.SQLite.Driver)
	envString("HISTORY_SQLITE_PATH", &cfg.History.SQLite.Path)
	envDuration("HISTORY_RETENTION", &cfg.History.Retention)

	// Maintenance overrides
	envString("MAINTENANCE_RECONCILE_SCHEDULE", &cfg.Maintenance.ReconcileSchedule)
	envString("MAINTENANCE_PRUNE_SCHEDULE", &cfg.Maintenance.PruneSchedule)

	// Server overrides
	envBool("SERVER_ENABLED", &cfg.Server.Enabled)
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	// Reload overrides
	envBool("RELOAD_ENABLED", &cfg.Reload.Enabled)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
