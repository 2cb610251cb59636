// Package history keeps a ledger of delivery attempts.
//
// Every attempt made by the delivery loop, successful or not, becomes one
// Attempt row. The ledger is what `backlog history` reads and what the
// maintenance scheduler prunes once entries age past the configured
// retention.
//
// Two backends implement Storage:
//
//   - SQLStorage, on SQLite through database/sql. The "sqlite" driver is the
//     pure Go modernc.org/sqlite; "sqlite3" is the cgo mattn/go-sqlite3.
//   - MemoryStorage, for tests and for running without a ledger file.
//
// Writes from the delivery loop go through a Recorder, which buffers them
// and writes on a background goroutine so that a slow disk never holds the
// delivery slot.
package history
