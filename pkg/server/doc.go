// Package server is the local HTTP surface of `backlog run`.
//
// It accepts crash reports from processes that cannot embed the client,
// lists stored records, triggers a flush and serves the metrics and health
// endpoints on the same listener:
//
//	POST /v1/reports   capture a JSON report
//	GET  /v1/records   list stored records in retry order
//	POST /v1/flush     send every stored record once
//
// Requests pass through recovery, request ID and logging middleware.
package server
