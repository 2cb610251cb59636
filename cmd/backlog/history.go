package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"mercator-hq/backlog/pkg/cli"
	"mercator-hq/backlog/pkg/history"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	recordID string
	outcome  string
	since    time.Duration
	limit    int
	offset   int
	format   string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show delivery attempts",
	Long: `Show recorded delivery attempts, newest first.

Examples:
  # Last 100 attempts
  backlog history

  # Failures of the last hour
  backlog history --outcome failure --since 1h

  # Attempts for one record as CSV
  backlog history --record 5f0c... --format csv`,
	RunE: showHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyFlags.recordID, "record", "", "filter by record ID")
	historyCmd.Flags().StringVar(&historyFlags.outcome, "outcome", "", "filter by outcome: success, failure, throttled")
	historyCmd.Flags().DurationVar(&historyFlags.since, "since", 0, "only attempts within this duration")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", history.DefaultQueryLimit, "maximum attempts to show")
	historyCmd.Flags().IntVar(&historyFlags.offset, "offset", 0, "attempts to skip")
	historyCmd.Flags().StringVar(&historyFlags.format, "format", "text", "output format: text, json, csv")
}

// attemptTable renders attempts as rows.
type attemptTable []*history.Attempt

func (t attemptTable) Header() []string {
	return []string{"ATTEMPTED", "RECORD", "MODE", "RETRY", "OUTCOME", "STATUS", "DURATION", "ERROR"}
}

func (t attemptTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, a := range t {
		status := ""
		if a.StatusCode != 0 {
			status = strconv.Itoa(a.StatusCode)
		}
		rows = append(rows, []string{
			a.AttemptedAt.Format(time.RFC3339),
			a.RecordID,
			a.Mode,
			strconv.Itoa(a.Retry),
			a.Outcome,
			status,
			a.Duration.Round(time.Millisecond).String(),
			a.Error,
		})
	}
	return rows
}

func showHistory(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(historyFlags.format)
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	outcome := strings.ToLower(historyFlags.outcome)
	switch outcome {
	case "", "success", "failure", "throttled":
	default:
		return cli.NewCommandError("history", fmt.Errorf("unknown outcome %q", historyFlags.outcome))
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	storage, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	q := &history.Query{
		RecordID: historyFlags.recordID,
		Outcome:  outcome,
		Limit:    historyFlags.limit,
		Offset:   historyFlags.offset,
	}
	if historyFlags.since > 0 {
		since := time.Now().Add(-historyFlags.since)
		q.Since = &since
	}

	attempts, err := storage.Query(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	if format == cli.FormatText && len(attempts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No delivery attempts found.")
		return nil
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), attemptTable(attempts))
}
