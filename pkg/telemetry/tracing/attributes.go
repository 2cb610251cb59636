package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrRecordID         = "backlog.record.id"
	AttrRecordHash       = "backlog.record.hash"
	AttrRecordDuplicates = "backlog.record.duplicates"
	AttrRecordRetry      = "backlog.record.retry"
	AttrDeliveryMode     = "backlog.delivery.mode"
	AttrDeliveryOutcome  = "backlog.delivery.outcome"
	AttrHTTPStatusCode   = "http.response.status_code"
	AttrHTTPMethod       = "http.request.method"
	AttrHTTPRoute        = "url.path"
	AttrRequestID        = "backlog.request.id"
)

// RecordAttributes describes a stored record.
func RecordAttributes(id, hash string, duplicates, retry int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRecordID, id),
		attribute.Int(AttrRecordDuplicates, duplicates),
		attribute.Int(AttrRecordRetry, retry),
	}
	if hash != "" {
		attrs = append(attrs, attribute.String(AttrRecordHash, hash))
	}
	return attrs
}

// SetOutcome records the result of a delivery attempt. statusCode is
// skipped when no response was received.
func SetOutcome(span trace.Span, outcome string, statusCode int) {
	span.SetAttributes(attribute.String(AttrDeliveryOutcome, outcome))
	if statusCode > 0 {
		span.SetAttributes(attribute.Int(AttrHTTPStatusCode, statusCode))
	}
}
