package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mercator-hq/backlog/pkg/cli"
	"mercator-hq/backlog/pkg/report"
	"mercator-hq/backlog/pkg/server"

	"github.com/spf13/cobra"
)

var submitFlags struct {
	file        string
	message     string
	classifiers []string
	attributes  map[string]string
	attachments []string
	fingerprint string
	server      string
	flush       bool
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Store a crash report",
	Long: `Store a crash report in the offline database.

The report is built from flags or read as JSON from --file ("-" for stdin).
It passes the same rate limit, deduplication and capacity rules as reports
captured in-process.

Examples:
  # Store a report
  backlog submit --message "nil map write" --classifier panic

  # Store a JSON report produced elsewhere
  backlog submit --file crash.json

  # Hand the report to a running backlog
  backlog submit --file crash.json --server 127.0.0.1:9464

  # Store and deliver right away
  backlog submit --message "disk full" --flush`,
	RunE: submitReport,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitFlags.file, "file", "f", "", "JSON report file, - for stdin")
	submitCmd.Flags().StringVarP(&submitFlags.message, "message", "m", "", "report message")
	submitCmd.Flags().StringSliceVar(&submitFlags.classifiers, "classifier", nil, "exception type name (repeatable)")
	submitCmd.Flags().StringToStringVar(&submitFlags.attributes, "attribute", nil, "key=value annotation (repeatable)")
	submitCmd.Flags().StringSliceVar(&submitFlags.attachments, "attach", nil, "attachment file path (repeatable)")
	submitCmd.Flags().StringVar(&submitFlags.fingerprint, "fingerprint", "", "override the deduplication hash")
	submitCmd.Flags().StringVar(&submitFlags.server, "server", "", "address of a running backlog to submit to")
	submitCmd.Flags().BoolVar(&submitFlags.flush, "flush", false, "deliver stored records after submitting")
}

func submitReport(cmd *cobra.Command, args []string) error {
	r, err := buildReport(cmd.InOrStdin())
	if err != nil {
		return cli.NewCommandError("submit", err)
	}
	out := cmd.OutOrStdout()

	if submitFlags.server != "" {
		var resp server.CaptureResponse
		if err := callServer(cmd.Context(), submitFlags.server, "POST", "/v1/reports", r, &resp); err != nil {
			return cli.NewCommandError("submit", err)
		}
		fmt.Fprintf(out, "Stored record %s (duplicates: %d)\n", resp.RecordID, resp.Duplicates)
		return nil
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
		return cli.NewCommandError("submit", err)
	}
	defer b.Close()

	rec, err := b.client.Capture(cmd.Context(), r)
	if err != nil {
		return cli.NewCommandError("submit", err)
	}
	fmt.Fprintf(out, "Stored record %s (duplicates: %d)\n", rec.ID, rec.DuplicateCount())

	if submitFlags.flush {
		summary, err := b.client.Flush(cmd.Context())
		if err != nil {
			return cli.NewCommandError("submit", err)
		}
		fmt.Fprintf(out, "Delivered %d of %d records\n", summary.Delivered, summary.Attempted)
	}
	return nil
}

// buildReport reads --file or assembles a report from flags. Flags given
// alongside --file override the file's fields.
func buildReport(stdin io.Reader) (*report.Report, error) {
	r := report.New("")

	if submitFlags.file != "" {
		var data []byte
		var err error
		if submitFlags.file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(submitFlags.file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read report: %w", err)
		}
		decoded, err := report.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		if decoded.UUID == "" {
			decoded.UUID = r.UUID
		}
		if decoded.Timestamp.IsZero() {
			decoded.Timestamp = r.Timestamp
		}
		r = decoded
	}

	if submitFlags.message != "" {
		r.Message = submitFlags.message
	}
	if len(submitFlags.classifiers) > 0 {
		r.Classifier = submitFlags.classifiers
	}
	for k, v := range submitFlags.attributes {
		r.SetAttribute(k, v)
	}
	for _, a := range submitFlags.attachments {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("invalid attachment %q: %w", a, err)
		}
		r.Attachments = append(r.Attachments, abs)
	}
	if submitFlags.fingerprint != "" {
		r.Fingerprint = submitFlags.fingerprint
	}

	if r.Message == "" && len(r.StackTrace) == 0 {
		return nil, fmt.Errorf("report needs a --message, a --file or a stack trace")
	}
	return r, nil
}
