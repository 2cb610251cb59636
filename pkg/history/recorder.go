package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/backlog/pkg/delivery"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// Buffer is the size of the write queue.
	// Default: 256
	Buffer int

	// WriteTimeout bounds each write and how long Observe waits on a full
	// queue.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// Recorder writes delivery attempts to a Storage on a background goroutine.
type Recorder struct {
	storage Storage
	config  RecorderConfig
	queue   chan *Attempt
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewRecorder starts a recorder over storage.
func NewRecorder(storage Storage, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage: storage,
		config:  cfg,
		queue:   make(chan *Attempt, cfg.Buffer),
		done:    make(chan struct{}),
		logger:  logger.With("component", "history.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// FromDelivery converts a finished delivery into a ledger entry.
func FromDelivery(a delivery.Attempt) *Attempt {
	entry := &Attempt{
		RecordID:    a.RecordID,
		Hash:        a.Hash,
		Duplicates:  a.Duplicates,
		Retry:       a.Retry,
		Mode:        a.Mode,
		Outcome:     a.Outcome.String(),
		StatusCode:  a.StatusCode,
		Duration:    a.Duration,
		AttemptedAt: a.StartedAt.UTC(),
	}
	if a.Err != nil {
		entry.Error = a.Err.Error()
	}
	return entry
}

// Observe enqueues a delivery attempt. It has the delivery.Observer
// signature.
func (r *Recorder) Observe(ctx context.Context, a delivery.Attempt) {
	entry := FromDelivery(a)

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		r.logger.Warn("Recorder closed, dropping attempt", "record_id", entry.RecordID)
	case r.queue <- entry:
	case <-timer.C:
		r.logger.Error("History queue full, dropping attempt",
			"record_id", entry.RecordID,
			"capacity", r.config.Buffer,
		)
	}
}

// Close stops accepting attempts and waits until queued ones are written.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-r.done:
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.storage.Record(ctx, entry); err != nil {
		r.logger.Error("Failed to record delivery attempt",
			"record_id", entry.RecordID,
			"error", err,
		)
		return
	}
	r.logger.Debug("Delivery attempt recorded",
		"record_id", entry.RecordID,
		"outcome", entry.Outcome,
	)
}
