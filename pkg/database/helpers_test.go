package database

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"mercator-hq/backlog/pkg/report"

	"github.com/google/uuid"
)

var testEpoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// distinctReport builds a report whose stack trace differs for every n.
func distinctReport(n int) *report.Report {
	return &report.Report{
		UUID:      uuid.NewString(),
		Timestamp: testEpoch.Add(time.Duration(n) * time.Second),
		Message:   fmt.Sprintf("report-%03d", n),
		StackTrace: []report.Frame{
			{Function: fmt.Sprintf("Handler%03d.Run", n)},
			{Function: "Main.Loop"},
		},
	}
}

func openTestDB(t *testing.T, dir string, cfg IndexConfig) *Database {
	t.Helper()
	db, err := Open(Config{
		Enabled:        true,
		Path:           dir,
		CreateDatabase: true,
		IndexConfig:    cfg,
	}, WithLogger(discardLogger()), WithClock(func() time.Time { return testEpoch }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return db
}

func mustAdd(t *testing.T, db *Database, r *report.Report) *Record {
	t.Helper()
	rec, err := db.Add(r)
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	return rec
}

func recordIDs(records []*Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
