// Package transport provides the reference HTTP delivery.Transport.
//
// The payload is POSTed as JSON to the configured submission URL. Records
// that stand for more than one captured report carry the count in the
// _mod_duplicate query parameter. Responses map onto delivery outcomes:
//
//	2xx        success, the record is deleted
//	429        throttled, kept without consuming a retry
//	otherwise  failure, consumes a retry
//
// Network errors and timeouts are failures.
package transport
