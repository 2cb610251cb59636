// Backlog persists crash reports on disk and delivers them to a submission
// endpoint, retrying with bounded storage.
//
// Usage:
//
//	# Deliver stored reports and accept new ones over HTTP
//	backlog run --config backlog.yaml
//
//	# Store a report
//	backlog submit --message "segfault in worker" --classifier SIGSEGV
//
//	# Inspect the store
//	backlog status
//
//	# Send everything now
//	backlog flush
//
//	# Show delivery attempts
//	backlog history --outcome failure
package main

import "os"

func main() {
	os.Exit(Execute())
}
