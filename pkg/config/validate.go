package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"mercator-hq/backlog/pkg/report"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "database.path").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateClient(&cfg.Client)...)
	errs = append(errs, validateDelivery(&cfg.Delivery)...)
	errs = append(errs, validateTransport(&cfg.Transport)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateMaintenance(&cfg.Maintenance)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Reload.Debounce < 0 {
		errs = append(errs, FieldError{Field: "reload.debounce", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// RetryOrders lists the accepted retry_order values.
var RetryOrders = []string{"fifo", "queue", "lifo", "stack"}

func validateDatabase(cfg *DatabaseConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && strings.TrimSpace(cfg.Path) == "" {
		errs = append(errs, FieldError{Field: "database.path", Message: "is required when the database is enabled"})
	}
	if cfg.MaxRecordCount < 0 {
		errs = append(errs, FieldError{Field: "database.max_record_count", Message: "must not be negative"})
	}
	if cfg.MaxDatabaseSizeMB < 0 {
		errs = append(errs, FieldError{Field: "database.max_database_size_mb", Message: "must not be negative"})
	}
	if _, err := report.ParseStrategy(cfg.Deduplication); err != nil {
		errs = append(errs, FieldError{Field: "database.deduplication", Message: err.Error()})
	}
	if !contains(RetryOrders, strings.ToLower(cfg.RetryOrder)) {
		errs = append(errs, FieldError{
			Field:   "database.retry_order",
			Message: fmt.Sprintf("must be one of %s", strings.Join(RetryOrders, ", ")),
		})
	}

	return errs
}

func validateClient(cfg *ClientConfig) []FieldError {
	if cfg.ReportPerMin < 0 {
		return []FieldError{{Field: "client.report_per_min", Message: "must not be negative"}}
	}
	return nil
}

func validateDelivery(cfg *DeliveryConfig) []FieldError {
	var errs []FieldError

	if cfg.RetryInterval <= 0 {
		errs = append(errs, FieldError{Field: "delivery.retry_interval", Message: "must be positive"})
	}
	if cfg.RetryLimit < 0 {
		errs = append(errs, FieldError{Field: "delivery.retry_limit", Message: "must not be negative"})
	}

	return errs
}

func validateTransport(cfg *TransportConfig) []FieldError {
	var errs []FieldError

	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			errs = append(errs, FieldError{Field: "transport.url", Message: fmt.Sprintf("invalid URL: %v", err)})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, FieldError{Field: "transport.url", Message: "scheme must be http or https"})
		} else if u.Host == "" {
			errs = append(errs, FieldError{Field: "transport.url", Message: "host is required"})
		}
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "transport.timeout", Message: "must be positive"})
	}

	return errs
}

func validateHistory(cfg *HistoryConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{Field: "history.sqlite.driver", Message: "must be sqlite or sqlite3"})
		}
		if strings.TrimSpace(cfg.SQLite.Path) == "" {
			errs = append(errs, FieldError{Field: "history.sqlite.path", Message: "is required for the sqlite backend"})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "history.sqlite.busy_timeout", Message: "must not be negative"})
		}
	default:
		errs = append(errs, FieldError{Field: "history.backend", Message: "must be sqlite or memory"})
	}
	if cfg.Retention < 0 {
		errs = append(errs, FieldError{Field: "history.retention", Message: "must not be negative"})
	}

	return errs
}

func validateMaintenance(cfg *MaintenanceConfig) []FieldError {
	var errs []FieldError

	for field, schedule := range map[string]string{
		"maintenance.reconcile_schedule": cfg.ReconcileSchedule,
		"maintenance.prune_schedule":     cfg.PruneSchedule,
	} {
		if schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(schedule); err != nil {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}

	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("invalid address: %v", err)})
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server", Message: "timeouts must not be negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must not be negative"})
	}

	seen := make(map[string]bool, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		field := fmt.Sprintf("server.api_keys[%d]", i)
		switch {
		case strings.TrimSpace(k.Name) == "":
			errs = append(errs, FieldError{Field: field + ".name", Message: "is required"})
		case k.Key == "":
			errs = append(errs, FieldError{Field: field + ".key", Message: "is required"})
		case seen[k.Key]:
			errs = append(errs, FieldError{Field: field + ".key", Message: fmt.Sprintf("duplicates another key (name %q)", k.Name)})
		}
		seen[k.Key] = true
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, strings.ToLower(cfg.Logging.Level)) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of %s", strings.Join(validLevels, ", ")),
		})
	}

	validFormats := []string{"json", "text", "console"}
	if !contains(validFormats, strings.ToLower(cfg.Logging.Format)) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be one of %s", strings.Join(validFormats, ", ")),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}

	if cfg.Tracing.Enabled {
		samplers := []string{"always", "never", "ratio"}
		if !contains(samplers, cfg.Tracing.Sampler) {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("must be one of %s", strings.Join(samplers, ", ")),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0 and 1"})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "is required when tracing is enabled"})
		}
	}

	return errs
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
