package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDisabled is returned by Open when the ledger is switched off.
var ErrDisabled = errors.New("history is disabled")

// Attempt is one recorded delivery attempt.
type Attempt struct {
	ID          string        `json:"id"`
	RecordID    string        `json:"record_id"`
	Hash        string        `json:"hash,omitempty"`
	Duplicates  int           `json:"duplicates"`
	Retry       int           `json:"retry"`
	Mode        string        `json:"mode"`
	Outcome     string        `json:"outcome"`
	StatusCode  int           `json:"status_code,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	AttemptedAt time.Time     `json:"attempted_at"`
}

// Query filters attempts. Zero fields match everything. Results are
// ordered newest first.
type Query struct {
	RecordID string
	Outcome  string
	Since    *time.Time
	Until    *time.Time

	// Limit caps the result. 0 means DefaultQueryLimit.
	Limit  int
	Offset int
}

// DefaultQueryLimit is the result cap applied when Query.Limit is 0.
const DefaultQueryLimit = 100

func (q *Query) limit() int {
	if q == nil || q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Storage is a delivery attempt ledger.
type Storage interface {
	// Record stores an attempt, assigning an ID when it has none.
	Record(ctx context.Context, a *Attempt) error

	// Query returns attempts matching q, newest first.
	Query(ctx context.Context, q *Query) ([]*Attempt, error)

	// Count returns the number of attempts matching q, ignoring pagination.
	Count(ctx context.Context, q *Query) (int64, error)

	// Prune deletes attempts made before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the backend.
	Close() error
}

// StorageError reports a failed backend operation.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("history storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
