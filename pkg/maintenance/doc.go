// Package maintenance runs periodic upkeep of the offline database.
//
// Two cron jobs (standard five-field syntax) are supported:
//
//   - reconcile: cross-checks the in-memory index against the files on disk,
//     drops records whose payload disappeared and sweeps orphaned files.
//   - prune: deletes delivery history older than the retention window.
//
// An empty schedule disables the job. A run that is still going when its
// next activation fires is skipped rather than overlapped.
package maintenance
