package delivery

import (
	"context"
	"time"

	"mercator-hq/backlog/pkg/database"
)

// Status is the transport's verdict on one submission.
type Status int

const (
	// StatusSuccess means the server accepted the report.
	StatusSuccess Status = iota
	// StatusFailure means the submission failed and may be retried.
	StatusFailure
	// StatusThrottled means the server asked the client to back off.
	StatusThrottled
)

// String returns the status name.
func (s Status) String() string {
	return s.Outcome().String()
}

// Outcome maps the status onto the index outcome.
func (s Status) Outcome() database.Outcome {
	switch s {
	case StatusSuccess:
		return database.OutcomeSuccess
	case StatusThrottled:
		return database.OutcomeThrottled
	default:
		return database.OutcomeFailure
	}
}

// Result is returned by a Transport.
type Result struct {
	Status Status
	// StatusCode is the protocol status, when the transport has one.
	StatusCode int
	Err        error
}

// Envelope is what a Transport submits for one record.
type Envelope struct {
	RecordID    string
	Payload     []byte
	Attachments []string
	// Duplicates is the number of captured reports the record stands for.
	Duplicates int
	// Retry is the number of failed attempts before this one.
	Retry int
}

// Transport submits one envelope. Implementations must honor ctx
// cancellation and must be safe for use from one goroutine at a time.
type Transport interface {
	Deliver(ctx context.Context, env Envelope) Result
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, env Envelope) Result

// Deliver calls f.
func (f TransportFunc) Deliver(ctx context.Context, env Envelope) Result {
	return f(ctx, env)
}

// Queue is the record source. *database.Database satisfies it.
type Queue interface {
	PopNext() (*database.Record, bool)
	Release(rec *database.Record, outcome database.Outcome) error
	Delete(rec *database.Record) error
}

// Delivery modes.
const (
	ModeAuto  = "auto"
	ModeFlush = "flush"
)

// Attempt describes one finished delivery.
type Attempt struct {
	RecordID   string
	Hash       string
	Duplicates int
	Retry      int
	Mode       string
	Outcome    database.Outcome
	StatusCode int
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
}

// Observer is notified after every attempt, from the delivering goroutine.
type Observer func(ctx context.Context, a Attempt)

// FlushSummary is returned by Loop.Flush.
type FlushSummary struct {
	Attempted int
	Delivered int
}
