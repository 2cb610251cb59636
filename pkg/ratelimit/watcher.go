package ratelimit

import (
	"sync"
	"time"
)

// Window is the rolling admission window.
const Window = time.Minute

// Watcher admits reports against a per-minute budget.
//
// The watcher keeps the timestamps of admitted reports that are still inside
// the rolling window. A report is admitted when fewer than Limit timestamps
// remain after pruning; otherwise it is rejected and the watcher raises a
// sticky warning flag so callers can tell the user once per flood.
//
// # Algorithm
//
//  1. Drop timestamps t where now - t >= Window
//  2. If the remaining count is below the limit, record now and admit
//  3. Otherwise reject and raise the warning flag
//
// A limit of 0 disables the watcher: every report is admitted.
//
// # Memory
//
// The timestamp buffer never holds more than Limit entries. Lowering the
// limit trims the oldest entries.
//
// # Thread Safety
//
// Watcher is safe for concurrent use.
type Watcher struct {
	mu         sync.Mutex
	limit      int
	admitted   []time.Time // oldest first
	shouldWarn bool
	warned     bool // warning acknowledged for the current flood
	now        func() time.Time
}

// NewWatcher creates a watcher admitting at most limit reports per minute.
// Negative limits are treated as 0 (disabled).
func NewWatcher(limit int) *Watcher {
	if limit < 0 {
		limit = 0
	}
	return &Watcher{
		limit:    limit,
		admitted: make([]time.Time, 0, limit),
		now:      time.Now,
	}
}

// WithClock replaces the wall clock used by Admit. Intended for tests.
func (w *Watcher) WithClock(now func() time.Time) *Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
	return w
}

// Configure changes the per-minute limit. Timestamps already recorded stay
// in effect, trimmed to the new limit.
func (w *Watcher) Configure(limit int) {
	if limit < 0 {
		limit = 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.limit = limit
	if limit == 0 {
		w.admitted = w.admitted[:0]
		return
	}
	if excess := len(w.admitted) - limit; excess > 0 {
		w.admitted = append(w.admitted[:0], w.admitted[excess:]...)
	}
}

// Limit returns the configured per-minute limit.
func (w *Watcher) Limit() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.limit
}

// Admit decides admission at the current wall-clock time.
func (w *Watcher) Admit() bool {
	w.mu.Lock()
	now := w.now()
	w.mu.Unlock()
	return w.TryAdmit(now)
}

// TryAdmit decides whether a report arriving at now is admitted.
func (w *Watcher) TryAdmit(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limit == 0 {
		return true
	}

	w.pruneLocked(now)

	if len(w.admitted) < w.limit {
		w.admitted = append(w.admitted, now)
		// admission resumed, a later flood warns again
		w.warned = false
		return true
	}

	if !w.warned {
		w.shouldWarn = true
	}
	return false
}

// Remaining returns how many reports would still be admitted at now.
func (w *Watcher) Remaining(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limit == 0 {
		return -1
	}
	w.pruneLocked(now)
	return w.limit - len(w.admitted)
}

// ShouldWarn reports whether a rejection happened that has not been
// acknowledged yet.
func (w *Watcher) ShouldWarn() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shouldWarn
}

// AcknowledgeWarning clears the warning flag. Further rejections in the same
// flood do not raise it again.
func (w *Watcher) AcknowledgeWarning() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shouldWarn = false
	w.warned = true
}

// Reset forgets all recorded admissions and the warning state.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.admitted = w.admitted[:0]
	w.shouldWarn = false
	w.warned = false
}

// pruneLocked drops timestamps that left the window.
// Caller must hold the lock.
func (w *Watcher) pruneLocked(now time.Time) {
	expired := 0
	for expired < len(w.admitted) && now.Sub(w.admitted[expired]) >= Window {
		expired++
	}
	if expired > 0 {
		w.admitted = append(w.admitted[:0], w.admitted[expired:]...)
	}
}
