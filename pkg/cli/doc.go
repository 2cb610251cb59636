/*
Package cli provides command-line helpers for the backlog command.

Output Formatting:

Command results are printed as text, JSON or CSV. Values implementing Table
are rendered as aligned columns in text mode and as rows in CSV mode:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, status); err != nil {
		return err
	}

Progress Reporting:

`backlog flush` reports per-record progress:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(db.Count()))
	// one Increment per delivery attempt
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

Errors:

ConfigError and CommandError carry the failure back to main, which maps
them to an exit status with ExitCode.
*/
package cli
