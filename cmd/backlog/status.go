package main

import (
	"strconv"
	"time"

	"mercator-hq/backlog/pkg/cli"
	"mercator-hq/backlog/pkg/server"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	format  string
	records bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the offline database holds",
	Long: `Show record counts, sizes and limits of the offline database.

The directory is reconciled first: records whose payload vanished are
dropped and files belonging to no record are removed.

Examples:
  backlog status
  backlog status --records
  backlog status --format json`,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFlags.format, "format", "text", "output format: text, json, csv")
	statusCmd.Flags().BoolVar(&statusFlags.records, "records", false, "list stored records instead of the summary")
}

// storeStatus is the summary printed by `backlog status`.
type storeStatus struct {
	Path           string     `json:"path"`
	Records        int        `json:"records"`
	MaxRecords     int        `json:"max_records"`
	Bytes          int64      `json:"bytes"`
	MaxBytes       int64      `json:"max_bytes"`
	DiskBytes      int64      `json:"disk_bytes"`
	Duplicates     int        `json:"duplicates"`
	Oldest         *time.Time `json:"oldest,omitempty"`
	RetryOrder     string     `json:"retry_order"`
	Deduplication  string     `json:"deduplication"`
	OrphansRemoved int        `json:"orphans_removed"`
	InvalidDropped int        `json:"invalid_dropped"`
	WithinLimits   bool       `json:"within_limits"`
	Attempts       *int64     `json:"history_attempts,omitempty"`
}

func (s storeStatus) Header() []string { return []string{"FIELD", "VALUE"} }

func (s storeStatus) Rows() [][]string {
	rows := [][]string{
		{"Path", s.Path},
		{"Records", limited(strconv.Itoa(s.Records), s.MaxRecords > 0, strconv.Itoa(s.MaxRecords))},
		{"Size", limited(humanize.IBytes(uint64(s.Bytes)), s.MaxBytes > 0, humanize.IBytes(uint64(s.MaxBytes)))},
		{"On disk", humanize.IBytes(uint64(s.DiskBytes))},
		{"Reports", humanize.Comma(int64(s.Duplicates))},
	}
	if s.Oldest != nil {
		rows = append(rows, []string{"Oldest", humanize.Time(*s.Oldest)})
	}
	rows = append(rows,
		[]string{"Retry order", s.RetryOrder},
		[]string{"Deduplication", s.Deduplication},
		[]string{"Within limits", strconv.FormatBool(s.WithinLimits)},
	)
	if s.OrphansRemoved > 0 || s.InvalidDropped > 0 {
		rows = append(rows, []string{"Cleaned up", strconv.Itoa(s.OrphansRemoved) + " orphaned files, " +
			strconv.Itoa(s.InvalidDropped) + " broken records"})
	}
	if s.Attempts != nil {
		rows = append(rows, []string{"Delivery attempts", humanize.Comma(*s.Attempts)})
	}
	return rows
}

func limited(value string, capped bool, limit string) string {
	if !capped {
		return value + " (unlimited)"
	}
	return value + " / " + limit
}

// recordTable lists records for `backlog status --records`.
type recordTable []server.RecordView

func (t recordTable) Header() []string {
	return []string{"ID", "CREATED", "DUPLICATES", "SIZE", "HASH"}
}

func (t recordTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		hash := r.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Format(time.RFC3339),
			strconv.Itoa(r.Duplicates),
			humanize.IBytes(uint64(r.Size)),
			hash,
		})
	}
	return rows
}

func showStatus(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(statusFlags.format)
	if err != nil {
		return cli.NewCommandError("status", err)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	b, err := openBacklog(cfg, logger)
	if err != nil {
		return cli.NewCommandError("status", err)
	}
	defer b.Close()

	ctx := cmd.Context()
	consistency, err := b.db.Reconcile(ctx)
	if err != nil {
		return cli.NewCommandError("status", err)
	}

	records := b.db.Get()
	formatter := cli.NewFormatter(format)

	if statusFlags.records {
		table := make(recordTable, 0, len(records))
		for _, rec := range records {
			table = append(table, server.NewRecordView(rec))
		}
		return formatter.FormatTo(cmd.OutOrStdout(), table)
	}

	dbCfg := b.db.Config()
	status := storeStatus{
		Path:           b.db.Dir(),
		Records:        consistency.Records,
		MaxRecords:     dbCfg.MaxRecordCount,
		Bytes:          consistency.IndexedBytes,
		MaxBytes:       dbCfg.MaxDatabaseSize,
		DiskBytes:      consistency.DiskBytes,
		RetryOrder:     dbCfg.RetryOrder.String(),
		Deduplication:  dbCfg.Deduplication.String(),
		OrphansRemoved: consistency.OrphansRemoved,
		InvalidDropped: consistency.InvalidDropped,
		WithinLimits:   consistency.WithinLimits,
	}
	for _, rec := range records {
		status.Duplicates += rec.DuplicateCount()
		if status.Oldest == nil || rec.CreatedAt.Before(*status.Oldest) {
			created := rec.CreatedAt
			status.Oldest = &created
		}
	}
	if b.history != nil {
		if n, err := b.history.Count(ctx, nil); err == nil {
			status.Attempts = &n
		} else {
			logger.Warn("Failed to count delivery attempts", "error", err)
		}
	}

	return formatter.FormatTo(cmd.OutOrStdout(), status)
}
