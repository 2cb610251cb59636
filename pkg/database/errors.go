package database

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled is returned by Open when the database is switched off or
	// its directory is missing and may not be created.
	ErrDisabled = errors.New("offline database is disabled")

	// ErrDatabaseFull is returned by Add when evicting every unlocked record
	// would still leave the store over its caps. Nothing is evicted then.
	ErrDatabaseFull = errors.New("offline database is full and no stored record can be evicted")

	// ErrRecordTooLarge is returned by Add when a single record is larger
	// than the size cap.
	ErrRecordTooLarge = errors.New("record exceeds the database size cap")

	// ErrRecordNotFound is returned when releasing or deleting a record the
	// index no longer holds.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned when record metadata cannot be used.
	ErrInvalidRecord = errors.New("invalid record")
)

// StorageError represents a failed filesystem operation on the store.
type StorageError struct {
	Operation string // "save", "load", "delete", "scan", ...
	Path      string // File or directory involved
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [operation=%s, path=%s]: %v", e.Operation, e.Path, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(operation, path string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}
