package history

// SchemaVersion is the current ledger schema version.
const SchemaVersion = 1

// Schema creates the ledger tables. Timestamps are Unix nanoseconds so both
// SQLite drivers read them back identically.
const Schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    record_id TEXT NOT NULL,
    hash TEXT,
    duplicates INTEGER NOT NULL DEFAULT 1,
    retry INTEGER NOT NULL DEFAULT 0,
    mode TEXT NOT NULL,
    outcome TEXT NOT NULL,
    status_code INTEGER,
    error TEXT,
    duration_ms INTEGER NOT NULL,
    attempted_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_attempted_at ON attempts(attempted_at);
CREATE INDEX IF NOT EXISTS idx_attempts_record_id ON attempts(record_id);
CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON attempts(outcome);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// InsertSchemaVersion records a schema version once.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`

// GetSchemaVersion returns the newest applied schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`
