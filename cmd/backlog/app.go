package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"mercator-hq/backlog/pkg/cli"
	"mercator-hq/backlog/pkg/client"
	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/delivery"
	"mercator-hq/backlog/pkg/history"
	"mercator-hq/backlog/pkg/security/auth"
	"mercator-hq/backlog/pkg/telemetry/logging"
	"mercator-hq/backlog/pkg/telemetry/metrics"
	"mercator-hq/backlog/pkg/telemetry/tracing"
	"mercator-hq/backlog/pkg/transport"

	"github.com/spf13/cobra"
)

const tracerShutdownTimeout = 5 * time.Second

// errNoTransport is the delivery error when transport.url is empty.
var errNoTransport = errors.New("no submission url configured")

// loadConfig reads --config. The default file is optional; without it the
// configuration comes from defaults and the environment. The returned path
// is empty in that case.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := cfgFile
	explicit := cmd.Flag("config") != nil && cmd.Flag("config").Changed

	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(path); !explicit && errors.Is(statErr, fs.ErrNotExist) {
		path = ""
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.LoadConfigWithEnvOverrides(path)
	}
	if err != nil {
		return nil, path, cli.NewConfigError(path, err)
	}

	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, path, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, w))
	if err != nil {
		return nil, cli.NewConfigError("", err)
	}
	logger.SetDefault()
	return logger, nil
}

// backlog bundles the components every command works with.
type backlog struct {
	cfg       *config.Config
	logger    *logging.Logger
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	db        *database.Database
	history   history.Storage
	transport *transport.HTTPTransport
	client    *client.Client

	// apiKeys is set by run when the server is guarded.
	apiKeys *auth.Validator
}

// openBacklog opens the database, the history ledger and the transport and
// builds a client over them. History is nil when disabled; transport is nil
// when no submission url is configured, in which case deliveries come back
// throttled and automatic delivery is off.
func openBacklog(cfg *config.Config, logger *logging.Logger, extra ...client.Option) (*backlog, error) {
	b := &backlog{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
	}
	log := logger.Slog()

	dbCfg, err := database.ConfigFrom(cfg)
	if err != nil {
		return nil, cli.NewConfigError("", err)
	}
	b.db, err = database.Open(dbCfg, database.WithLogger(log), database.WithMetrics(b.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to open offline database: %w", err)
	}

	b.history, err = history.Open(cfg.History, log)
	switch {
	case errors.Is(err, history.ErrDisabled):
		b.history = nil
	case err != nil:
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	var deliverer delivery.Transport
	clientCfg := client.ConfigFrom(cfg)
	if cfg.Transport.URL != "" {
		b.transport, err = transport.NewHTTPTransport(cfg.Transport, transport.WithLogger(log))
		if err != nil {
			b.closeHistory()
			return nil, cli.NewConfigError("", err)
		}
		deliverer = b.transport
	} else {
		clientCfg.AutoSend = false
		deliverer = delivery.TransportFunc(func(ctx context.Context, env delivery.Envelope) delivery.Result {
			return delivery.Result{Status: delivery.StatusThrottled, Err: errNoTransport}
		})
	}

	b.tracer, err = tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		b.closeHistory()
		return nil, cli.NewConfigError("", err)
	}

	opts := []client.Option{
		client.WithLogger(log),
		client.WithMetrics(b.metrics),
		client.WithTracer(b.tracer),
	}
	if b.history != nil {
		opts = append(opts, client.WithHistory(b.history))
	}
	opts = append(opts, extra...)

	b.client = client.New(b.db, deliverer, clientCfg, opts...)
	return b, nil
}

// Close waits for outstanding deliveries, flushes buffered spans and closes
// the history ledger.
func (b *backlog) Close() {
	b.client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
	defer cancel()
	if err := b.tracer.Shutdown(ctx); err != nil {
		b.logger.Warn("Failed to flush traces", "error", err)
	}

	b.closeHistory()
}

func (b *backlog) closeHistory() {
	if b.history == nil {
		return
	}
	if err := b.history.Close(); err != nil {
		b.logger.Warn("Failed to close history", "error", err)
	}
}

// openHistory opens the ledger alone, for commands that do not touch the
// database.
func openHistory(cfg *config.Config, logger *logging.Logger) (history.Storage, error) {
	storage, err := history.Open(cfg.History, logger.Slog())
	if errors.Is(err, history.ErrDisabled) {
		return nil, cli.NewConfigError("", fmt.Errorf("history is disabled (history.enabled: false)"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return storage, nil
}
