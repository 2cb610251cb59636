package main

import (
	"fmt"

	"mercator-hq/backlog/pkg/cli"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var clearFlags struct {
	yes bool
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored record",
	Long: `Delete every stored record and every other file in the database
directory. Delivery history is kept.

Examples:
  backlog clear --yes`,
	RunE: clearRecords,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().BoolVarP(&clearFlags.yes, "yes", "y", false, "confirm deletion")
}

func clearRecords(cmd *cobra.Command, args []string) error {
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
		return cli.NewCommandError("clear", err)
	}
	defer b.Close()

	count, size := b.db.Count(), b.db.TotalSize()
	if !clearFlags.yes {
		return cli.NewCommandError("clear",
			fmt.Errorf("refusing to delete %d records (%s) without --yes", count, humanize.IBytes(uint64(size))))
	}

	if err := b.db.Clear(); err != nil {
		return cli.NewCommandError("clear", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d records (%s)\n", count, humanize.IBytes(uint64(size)))
	return nil
}
