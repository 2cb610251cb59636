package main

import (
	"context"
	"fmt"

	"mercator-hq/backlog/pkg/cli"
	"mercator-hq/backlog/pkg/client"
	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/delivery"
	"mercator-hq/backlog/pkg/server"

	"github.com/spf13/cobra"
)

var flushFlags struct {
	server string
	quiet  bool
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Send every stored record once",
	Long: `Send every stored record once, ignoring the retry interval.

Each record is removed before it is sent, so a failed send is not retried.
Interrupting the command stops after the delivery in progress.

Examples:
  backlog flush
  backlog flush --server 127.0.0.1:9464`,
	RunE: flushRecords,
}

func init() {
	rootCmd.AddCommand(flushCmd)

	flushCmd.Flags().StringVar(&flushFlags.server, "server", "", "address of a running backlog to flush")
	flushCmd.Flags().BoolVarP(&flushFlags.quiet, "quiet", "q", false, "no progress output")
}

func flushRecords(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if flushFlags.server != "" {
		var resp server.FlushResponse
		if err := callServer(cmd.Context(), flushFlags.server, "POST", "/v1/flush", nil, &resp); err != nil {
			return cli.NewCommandError("flush", err)
		}
		fmt.Fprintf(out, "Delivered %d of %d records\n", resp.Delivered, resp.Attempted)
		return nil
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Transport.URL == "" {
		return cli.NewConfigError("", fmt.Errorf("transport.url is required to flush"))
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var progress cli.ProgressReporter
	var opts []client.Option
	if !flushFlags.quiet {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
		opts = append(opts, client.WithObserver(func(ctx context.Context, a delivery.Attempt) {
			progress.Increment(a.Outcome != database.OutcomeSuccess)
		}))
	}

	b, err := openBacklog(cfg, logger, opts...)
	if err != nil {
		return cli.NewCommandError("flush", err)
	}
	defer b.Close()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	if progress != nil {
		progress.Start(int64(b.db.Count()))
	}
	summary, err := b.client.Flush(ctx)
	if progress != nil {
		if err != nil {
			progress.Error(err)
		} else {
			progress.Finish()
		}
	}
	if err != nil {
		return cli.NewCommandError("flush", err)
	}

	fmt.Fprintf(out, "Delivered %d of %d records\n", summary.Delivered, summary.Attempted)
	return nil
}
