// Package config provides configuration management for the crash-report
// backlog.
//
// This package handles loading, validating, and hot reloading configuration
// from YAML files with environment variable overrides.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("backlog.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("backlog.yaml")
//
//  3. From defaults and the environment only:
//     cfg, err := config.LoadFromEnv()
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention BACKLOG_SECTION_FIELD:
//
//   - BACKLOG_DATABASE_PATH overrides database.path
//   - BACKLOG_DELIVERY_RETRY_INTERVAL overrides delivery.retry_interval
//   - BACKLOG_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// A Holder owns the live configuration and a Watcher reloads it when the
// file changes:
//
//	holder := config.NewHolder(path, cfg)
//	w, _ := config.NewWatcher(holder, cfg.Reload.Debounce, logger)
//	go w.Watch(ctx, func(prev, next *config.Config) {
//		client.SetReportLimit(next.Client.ReportPerMin)
//	})
//
// Only runtime-safe settings are applied on reload; storage location and
// capacity changes take effect on restart.
//
// # Example Configuration
//
//	database:
//	  path: "./data/reports"
//	  max_record_count: 100
//	  max_database_size_mb: 50
//	  deduplication: "default|message"
//	  retry_order: "fifo"
//
//	delivery:
//	  retry_interval: "60s"
//	  retry_limit: 3
//
//	transport:
//	  url: "https://submit.example.com/post"
//
//	server:
//	  listen_address: "127.0.0.1:9464"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
