package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // "sqlite3" driver (cgo)
	_ "modernc.org/sqlite"          // "sqlite" driver (pure Go)
)

// SQLConfig configures the SQLite ledger.
type SQLConfig struct {
	// Driver is "sqlite" or "sqlite3".
	Driver string
	// Path is the database file.
	Path string
	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
	// WALMode enables write-ahead logging.
	WALMode bool
}

// SQLStorage is the SQLite-backed ledger.
type SQLStorage struct {
	db     *sql.DB
	config SQLConfig
	logger *slog.Logger
}

// NewSQLStorage opens (creating if needed) the ledger at cfg.Path.
func NewSQLStorage(cfg SQLConfig, logger *slog.Logger) (*SQLStorage, error) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.Path == "" {
		return nil, NewStorageError(cfg.Driver, "open", fmt.Errorf("path cannot be empty"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "history.sqlite")

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, NewStorageError(cfg.Driver, "mkdir", err)
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, NewStorageError(cfg.Driver, "open", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLStorage{
		db:     db,
		config: cfg,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("History ledger opened",
		"driver", cfg.Driver,
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
	)

	return s, nil
}

func (s *SQLStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStorageError(s.config.Driver, "enable_wal", err)
		}
	}

	if s.config.BusyTimeout > 0 {
		pragma := fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())
		if _, err := s.db.Exec(pragma); err != nil {
			return NewStorageError(s.config.Driver, "set_busy_timeout", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewStorageError(s.config.Driver, "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion, time.Now().UnixNano()); err != nil {
		return NewStorageError(s.config.Driver, "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return NewStorageError(s.config.Driver, "get_schema_version", err)
	}
	if version.Int64 != SchemaVersion {
		return NewStorageError(s.config.Driver, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}

	return nil
}

// Record inserts a.
func (s *SQLStorage) Record(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (
			id, record_id, hash, duplicates, retry, mode, outcome,
			status_code, error, duration_ms, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RecordID, nullString(a.Hash), a.Duplicates, a.Retry, a.Mode, a.Outcome,
		nullInt(a.StatusCode), nullString(a.Error), a.Duration.Milliseconds(), a.AttemptedAt.UnixNano(),
	)
	if err != nil {
		return NewStorageError(s.config.Driver, "record", err)
	}
	return nil
}

// Query returns matching attempts, newest first.
func (s *SQLStorage) Query(ctx context.Context, q *Query) ([]*Attempt, error) {
	where, args := buildWhereClause(q)

	query := `SELECT id, record_id, hash, duplicates, retry, mode, outcome,
		status_code, error, duration_ms, attempted_at FROM attempts`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY attempted_at DESC, rowid DESC LIMIT ?"
	args = append(args, q.limit())
	if q != nil && q.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStorageError(s.config.Driver, "query", err)
	}
	defer rows.Close()

	attempts := []*Attempt{}
	for rows.Next() {
		var (
			a          Attempt
			hash, msg  sql.NullString
			statusCode sql.NullInt64
			durationMs int64
			at         int64
		)
		if err := rows.Scan(&a.ID, &a.RecordID, &hash, &a.Duplicates, &a.Retry, &a.Mode, &a.Outcome,
			&statusCode, &msg, &durationMs, &at); err != nil {
			return nil, NewStorageError(s.config.Driver, "scan", err)
		}
		a.Hash = hash.String
		a.Error = msg.String
		a.StatusCode = int(statusCode.Int64)
		a.Duration = time.Duration(durationMs) * time.Millisecond
		a.AttemptedAt = time.Unix(0, at).UTC()
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(s.config.Driver, "query", err)
	}

	return attempts, nil
}

// Count returns the number of matching attempts.
func (s *SQLStorage) Count(ctx context.Context, q *Query) (int64, error) {
	where, args := buildWhereClause(q)

	query := "SELECT COUNT(*) FROM attempts"
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, NewStorageError(s.config.Driver, "count", err)
	}
	return count, nil
}

// Prune deletes attempts made before cutoff.
func (s *SQLStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM attempts WHERE attempted_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, NewStorageError(s.config.Driver, "prune", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, NewStorageError(s.config.Driver, "prune", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError(s.config.Driver, "close", err)
	}
	s.logger.Info("History ledger closed")
	return nil
}

func buildWhereClause(q *Query) (string, []any) {
	if q == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if q.RecordID != "" {
		conditions = append(conditions, "record_id = ?")
		args = append(args, q.RecordID)
	}
	if q.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, q.Outcome)
	}
	if q.Since != nil {
		conditions = append(conditions, "attempted_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		conditions = append(conditions, "attempted_at <= ?")
		args = append(args, q.Until.UnixNano())
	}

	return strings.Join(conditions, " AND "), args
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
