package main

import (
	"fmt"
	"net"
	"os"
	"reflect"
	"sync"
	"time"

	"mercator-hq/backlog/pkg/cli"
	"mercator-hq/backlog/pkg/client"
	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/maintenance"
	"mercator-hq/backlog/pkg/security/auth"
	"mercator-hq/backlog/pkg/server"
	"mercator-hq/backlog/pkg/telemetry/health"

	"github.com/spf13/cobra"
)

// transportFailureThreshold marks the transport unready after this many
// consecutive failed submissions.
const transportFailureThreshold = 3

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deliver stored reports and serve the local HTTP API",
	Long: `Start the delivery loop over the offline database.

The process retries stored reports on delivery.retry_interval, runs the
maintenance jobs and, unless server.enabled is false, serves:

  POST /v1/reports   capture a report
  GET  /v1/records   list stored records
  POST /v1/flush     send everything now
  /metrics, /healthz, /readyz, /version

Other commands open the database directory directly; while run is active,
use the HTTP API (submit --server, flush --server) instead.

Examples:
  # Start with default config
  backlog run

  # Override listen address
  backlog run --listen 0.0.0.0:9464

  # Validate config without starting
  backlog run --dry-run`,
	RunE: runBacklog,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override server listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runBacklog(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(path, err)
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	b, err := openBacklog(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer b.Close()

	if b.transport == nil {
		logger.Warn("No transport.url configured, reports are stored but not delivered")
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	var pruner maintenance.Pruner
	if b.history != nil {
		pruner = b.history
	}
	scheduler := maintenance.NewScheduler(maintenance.ConfigFrom(cfg), b.db, pruner,
		maintenance.WithLogger(logger.Slog()),
		maintenance.WithMetrics(b.metrics),
	)
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer scheduler.Stop()

	var holder *config.Holder
	var watcher *config.Watcher
	if path != "" {
		holder = config.NewHolder(path, cfg)
		if cfg.Reload.Enabled {
			watcher, err = config.NewWatcher(holder, cfg.Reload.Debounce, logger.Slog())
			if err != nil {
				return cli.NewCommandError("run", err)
			}
		}
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	if cfg.Server.Enabled {
		opts := []server.Option{
			server.WithLogger(logger.Slog()),
			server.WithMetrics(b.metrics, metricsPath(cfg)),
			server.WithTracer(b.tracer),
			server.WithHealth(newChecker(b), health.VersionInfo{
				Version:   Version,
				Commit:    GitCommit,
				BuildTime: BuildDate,
			}),
		}
		if len(cfg.Server.APIKeys) > 0 {
			b.apiKeys = auth.FromConfig(cfg.Server.APIKeys)
			opts = append(opts, server.WithAuth(b.apiKeys))
		} else if !isLoopback(cfg.Server.ListenAddress) {
			logger.Warn("Server listens beyond loopback without API keys", "address", cfg.Server.ListenAddress)
		}
		srv := server.New(cfg.Server, b.client, opts...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	if holder != nil {
		apply := func(previous, next *config.Config) {
			applyConfig(b, previous, next)
		}

		if watcher != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := watcher.Watch(ctx, apply); err != nil {
					logger.Warn("Config watcher stopped", "error", err)
				}
				if err := watcher.Stop(); err != nil {
					logger.Warn("Failed to release config watcher", "error", err)
				}
			}()
		}

		hup, stopHup := cli.ReloadSignals()
		defer stopHup()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-hup:
					previous, next, err := holder.Reload()
					if err != nil {
						logger.Warn("Reload on SIGHUP failed", "error", err)
						continue
					}
					apply(previous, next)
				}
			}
		}()
	}

	logger.Info("Backlog running",
		"version", Version,
		"database", b.db.Dir(),
		"records", b.db.Count(),
		"auto_send", cfg.Delivery.AutoSend && b.transport != nil,
		"server", cfg.Server.Enabled,
	)

	loopDone := make(chan error, 1)
	go func() { loopDone <- b.client.Start(ctx) }()

	var runErr error
	select {
	case runErr = <-errChan:
		stop()
		<-loopDone
	case runErr = <-loopDone:
		stop()
	}
	wg.Wait()

	if runErr != nil {
		return cli.NewCommandError("run", runErr)
	}
	logger.Info("Backlog stopped", "records", b.db.Count())
	return nil
}

func metricsPath(cfg *config.Config) string {
	if !cfg.Telemetry.Metrics.Enabled {
		return ""
	}
	return cfg.Telemetry.Metrics.Path
}

// newChecker registers the readiness checks of a running backlog.
func newChecker(b *backlog) *health.Checker {
	checker := health.New(2 * time.Second)
	dbCfg := b.db.Config()

	checker.Register("database", health.DirCheck(b.db.Dir()))
	checker.Register("record_count", health.CapacityCheck("records",
		func() int64 { return int64(b.db.Count()) }, int64(dbCfg.MaxRecordCount)))
	checker.Register("database_size", health.CapacityCheck("bytes",
		b.db.TotalSize, dbCfg.MaxDatabaseSize))
	if b.transport != nil {
		checker.Register("transport", health.FailureCheck(func() int {
			return b.transport.Stats().ConsecutiveFailures
		}, transportFailureThreshold))
	}
	return checker
}

// applyConfig applies the runtime-safe settings of a reloaded
// configuration. Storage, transport and server changes need a restart.
func applyConfig(b *backlog, previous, next *config.Config) {
	clientCfg := client.ConfigFrom(next)
	b.client.Apply(clientCfg)

	if next.Telemetry.Logging.Level != previous.Telemetry.Logging.Level {
		if err := b.logger.SetLevel(next.Telemetry.Logging.Level); err != nil {
			b.logger.Warn("Ignoring log level from reloaded config", "error", err)
		}
	}

	switch {
	case b.apiKeys != nil:
		b.apiKeys.Replace(auth.KeysFromConfig(next.Server.APIKeys))
	case len(next.Server.APIKeys) > 0:
		b.logger.Warn("API keys take effect after restart")
	}

	if next.Database != previous.Database || next.Transport != previous.Transport || serverChanged(previous.Server, next.Server) {
		b.logger.Warn("Ignoring storage and endpoint changes until restart")
	}
	b.logger.Info("Configuration reloaded",
		"report_per_min", clientCfg.ReportPerMin,
		"retry_interval", clientCfg.RetryInterval,
	)
}

// serverChanged compares the listener settings, ignoring API keys.
func serverChanged(a, b config.ServerConfig) bool {
	a.APIKeys, b.APIKeys = nil, nil
	return !reflect.DeepEqual(a, b)
}

func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
