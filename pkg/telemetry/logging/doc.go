// Package logging provides structured logging on top of log/slog.
//
// # Overview
//
//   - JSON, text and console formats
//   - Runtime-adjustable level
//   - Context fields for the record and attempt being processed
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	if err != nil {
//		return err
//	}
//	logger.SetDefault()
//
//	ctx = logging.WithRecordID(ctx, rec.ID)
//	logger.InfoContext(ctx, "Delivery succeeded", "duration_ms", 12)
//
// Components receive a *slog.Logger (Logger.Slog) and tag it with
// "component".
package logging
