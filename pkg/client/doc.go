// Package client is the entry point applications capture reports through.
//
// A Client owns the data flow of the offline backlog:
//
//	Capture -> rate limit admission -> Database.Add (dedup, caps)
//	        -> delivery loop (tick, PopNext, transport, Release)
//	        -> history ledger
//
// Capture never blocks on the network. Reports rejected by the per-minute
// budget return ErrRateLimited; the first rejection of a flood is logged
// once at warn level.
package client
