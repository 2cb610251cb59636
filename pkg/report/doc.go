// Package report defines the crash report model persisted by the offline
// database, together with the deduplication strategy and hash that decide
// when two reports collapse into one stored record.
package report
