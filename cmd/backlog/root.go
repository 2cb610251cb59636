package main

import (
	"fmt"
	"os"

	"mercator-hq/backlog/pkg/cli"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	apiKey  string
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "backlog.yaml"

var rootCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Offline crash-report store with delivery retry",
	Long: `Backlog keeps crash reports on disk until they are delivered.

Reports are deduplicated, capped by count and size, and retried one at a
time on a fixed interval. Failed deliveries are dropped after the retry
limit; throttled deliveries are retried without consuming it.

Configuration is read from backlog.yaml when present, then from BACKLOG_*
environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("BACKLOG_API_KEY"), "API key for --server requests")
}
