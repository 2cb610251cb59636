package database

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"mercator-hq/backlog/pkg/report"
	"mercator-hq/backlog/pkg/telemetry/metrics"
)

// RetryOrder selects which record is handed out, and evicted, first.
type RetryOrder int

const (
	// RetryOrderFIFO serves the oldest record first.
	RetryOrderFIFO RetryOrder = iota
	// RetryOrderLIFO serves the newest record first.
	RetryOrderLIFO
)

// String returns the order name.
func (o RetryOrder) String() string {
	if o == RetryOrderLIFO {
		return "lifo"
	}
	return "fifo"
}

// ParseRetryOrder accepts "fifo"/"queue" and "lifo"/"stack".
func ParseRetryOrder(value string) (RetryOrder, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "fifo", "queue":
		return RetryOrderFIFO, nil
	case "lifo", "stack":
		return RetryOrderLIFO, nil
	default:
		return RetryOrderFIFO, fmt.Errorf("unknown retry order %q", value)
	}
}

// Outcome is the verdict of one delivery attempt.
type Outcome int

const (
	// OutcomeSuccess removes the record.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure consumes one retry. The record is dropped once its
	// failures exceed the retry limit.
	OutcomeFailure
	// OutcomeThrottled keeps the record without consuming a retry.
	OutcomeThrottled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeThrottled:
		return "throttled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// IndexConfig holds the index policy.
type IndexConfig struct {
	// MaxRecordCount caps the number of records. 0 means unlimited.
	MaxRecordCount int
	// MaxDatabaseSize caps the total record size in bytes. 0 means unlimited.
	MaxDatabaseSize int64
	// RetryLimit is the number of failures a record survives.
	RetryLimit int
	// RetryOrder orders delivery and eviction.
	RetryOrder RetryOrder
	// Deduplication selects the dedup hash components.
	Deduplication report.Strategy
}

// Index is the in-memory view of the stored records.
//
// Records are kept in insertion order; each gets a monotonically increasing
// sequence number that is persisted with it, so the order survives a reopen.
// The same order drives delivery (PopNext) and eviction:
// FIFO takes the lowest sequence first, LIFO the highest. Locked records are
// skipped by both.
//
// All operations are serialized by a single mutex. File writes for a new
// record happen under that mutex so caps are enforced against a consistent
// view.
type Index struct {
	mu      sync.Mutex
	cfg     IndexConfig
	store   *FileStore
	records []*Record // ascending seq
	byID    map[string]*Record
	byHash  map[string][]*Record
	size    int64
	seq     uint64
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewIndex creates an empty index over store.
func NewIndex(store *FileStore, cfg IndexConfig, logger *slog.Logger, collector *metrics.Collector) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		cfg:     cfg,
		store:   store,
		byID:    make(map[string]*Record),
		byHash:  make(map[string][]*Record),
		logger:  logger,
		metrics: collector,
	}
}

// Add stores r, or folds it into an existing unlocked record with the same
// dedup hash. After a new record is stored, older records are evicted in
// retry order until both caps hold. The new record itself is never evicted.
// When the caps cannot be met even by evicting every unlocked record, the
// new record is rolled back before anything is evicted and ErrRecordTooLarge
// or ErrDatabaseFull is returned.
//
// Folding into an existing record only rewrites its metadata, so that path
// does not evict; a few bytes of growth are settled by the next new record.
func (idx *Index) Add(r *report.Report) (*Record, error) {
	hash := report.Hash(r, idx.cfg.Deduplication)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if hash != "" {
		if existing := idx.findDuplicateLocked(hash); existing != nil {
			idx.size += existing.increment()
			idx.publishLocked()
			idx.logger.Debug("Report deduplicated",
				"record_id", existing.ID,
				"duplicates", existing.DuplicateCount(),
			)
			return existing, nil
		}
	}

	rec, err := idx.store.NewRecord(r, hash)
	if err != nil {
		return nil, err
	}
	idx.seq++
	rec.seq = idx.seq
	if err := rec.Save(); err != nil {
		rec.Delete()
		return nil, err
	}

	idx.insertLocked(rec)
	if err := idx.enforceCapsLocked(rec); err != nil {
		idx.removeLocked(rec)
		rec.Delete()
		idx.publishLocked()
		return nil, err
	}

	idx.publishLocked()
	return rec, nil
}

// Insert adds an already persisted record, as found on disk at startup, and
// enforces the caps. Records are expected oldest first.
func (idx *Index) Insert(rec *Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.byID[rec.ID]; ok {
		return fmt.Errorf("record %s already indexed", rec.ID)
	}

	rec.setState(StatePending)
	idx.insertLocked(rec)
	err := idx.enforceCapsLocked(nil)
	idx.publishLocked()
	return err
}

// PopNext locks and returns the first unlocked record in retry order.
func (idx *Index) PopNext() (*Record, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec := idx.frontLocked(nil)
	if rec == nil {
		return nil, false
	}
	rec.setState(StateLocked)
	return rec, true
}

// Release unlocks a record handed out by PopNext and applies the delivery
// outcome. The in-memory payload is dropped either way.
func (idx *Index) Release(rec *Record, outcome Outcome) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.byID[rec.ID] != rec {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, rec.ID)
	}

	rec.setState(StatePending)
	rec.Unload()

	switch outcome {
	case OutcomeSuccess:
		idx.removeLocked(rec)
		rec.Delete()

	case OutcomeFailure:
		retries := rec.incrementRetries()
		if retries > idx.cfg.RetryLimit {
			idx.logger.Warn("Dropping record after exhausting retries",
				"record_id", rec.ID,
				"retries", retries,
				"retry_limit", idx.cfg.RetryLimit,
			)
			idx.removeLocked(rec)
			rec.Delete()
			idx.metrics.RecordEviction("retry_limit")
		}

	case OutcomeThrottled:
		// kept as is
	}

	idx.publishLocked()
	return nil
}

// Delete removes a record regardless of its state.
func (idx *Index) Delete(rec *Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.byID[rec.ID] != rec {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, rec.ID)
	}
	idx.removeLocked(rec)
	rec.Delete()
	idx.publishLocked()
	return nil
}

// Clear removes every record, locked ones included.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, rec := range idx.records {
		rec.setState(StateRemoved)
		rec.Delete()
	}
	idx.records = nil
	idx.byID = make(map[string]*Record)
	idx.byHash = make(map[string][]*Record)
	idx.size = 0
	idx.publishLocked()
}

// audit is the raw result of Index.reconcile.
type audit struct {
	records        int
	indexedBytes   int64
	diskBytes      int64
	invalidDropped int
	orphansRemoved int
}

// reconcile drops unlocked records whose payload file disappeared, sweeps
// files that belong to no record and measures the directory. It runs under
// the index lock so in-progress saves are never mistaken for orphans.
func (idx *Index) reconcile() (audit, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var a audit
	var invalid []*Record
	for _, rec := range idx.records {
		if rec.State() == StatePending && !rec.Valid() {
			invalid = append(invalid, rec)
		}
	}
	for _, rec := range invalid {
		idx.logger.Warn("Dropping record with missing payload", "record_id", rec.ID)
		idx.removeLocked(rec)
		rec.Delete()
		idx.metrics.RecordEviction("invalid")
	}
	a.invalidDropped = len(invalid)

	removed, err := idx.store.RemoveOrphaned(idx.records)
	if err != nil {
		return a, err
	}
	a.orphansRemoved = removed

	disk, err := idx.store.TotalSize()
	if err != nil {
		return a, err
	}
	a.diskBytes = disk
	a.records = len(idx.records)
	a.indexedBytes = idx.size

	idx.publishLocked()
	return a, nil
}

// sweep removes every file not owned by an indexed record.
func (idx *Index) sweep() (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.store.RemoveOrphaned(idx.records)
}

// Records returns a snapshot of the records in retry order.
func (idx *Index) Records() []*Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]*Record, 0, len(idx.records))
	if idx.cfg.RetryOrder == RetryOrderLIFO {
		for i := len(idx.records) - 1; i >= 0; i-- {
			out = append(out, idx.records[i])
		}
		return out
	}
	return append(out, idx.records...)
}

// Count returns the number of records.
func (idx *Index) Count() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.records)
}

// TotalSize returns the summed record size in bytes.
func (idx *Index) TotalSize() int64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.size
}

// Config returns the index policy.
func (idx *Index) Config() IndexConfig {
	return idx.cfg
}

func (idx *Index) insertLocked(rec *Record) {
	switch {
	case rec.seq == 0:
		idx.seq++
		rec.seq = idx.seq
	case rec.seq > idx.seq:
		idx.seq = rec.seq
	}
	idx.records = append(idx.records, rec)
	idx.byID[rec.ID] = rec
	if rec.Hash != "" {
		idx.byHash[rec.Hash] = append(idx.byHash[rec.Hash], rec)
	}
	idx.size += rec.Size()
}

func (idx *Index) removeLocked(rec *Record) {
	for i, r := range idx.records {
		if r == rec {
			idx.records = append(idx.records[:i], idx.records[i+1:]...)
			break
		}
	}
	delete(idx.byID, rec.ID)
	if rec.Hash != "" {
		bucket := idx.byHash[rec.Hash]
		for i, r := range bucket {
			if r == rec {
				bucket = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		if len(bucket) == 0 {
			delete(idx.byHash, rec.Hash)
		} else {
			idx.byHash[rec.Hash] = bucket
		}
	}
	idx.size -= rec.Size()
	rec.setState(StateRemoved)
}

// findDuplicateLocked returns the first unlocked record with hash.
func (idx *Index) findDuplicateLocked(hash string) *Record {
	for _, rec := range idx.byHash[hash] {
		if rec.State() == StatePending {
			return rec
		}
	}
	return nil
}

// frontLocked returns the first unlocked record in retry order, skipping
// exclude.
func (idx *Index) frontLocked(exclude *Record) *Record {
	if idx.cfg.RetryOrder == RetryOrderLIFO {
		for i := len(idx.records) - 1; i >= 0; i-- {
			if rec := idx.records[i]; rec != exclude && rec.State() == StatePending {
				return rec
			}
		}
		return nil
	}
	for _, rec := range idx.records {
		if rec != exclude && rec.State() == StatePending {
			return rec
		}
	}
	return nil
}

func (idx *Index) overCapsLocked() bool {
	if idx.cfg.MaxRecordCount > 0 && len(idx.records) > idx.cfg.MaxRecordCount {
		return true
	}
	return idx.cfg.MaxDatabaseSize > 0 && idx.size > idx.cfg.MaxDatabaseSize
}

// fitLocked checks that evicting every unlocked record other than protect
// would bring the index within both caps.
func (idx *Index) fitLocked(protect *Record) error {
	if protect != nil && idx.cfg.MaxDatabaseSize > 0 && protect.Size() > idx.cfg.MaxDatabaseSize {
		return fmt.Errorf("%w: %d bytes, cap %d", ErrRecordTooLarge, protect.Size(), idx.cfg.MaxDatabaseSize)
	}

	count, size := len(idx.records), idx.size
	for _, rec := range idx.records {
		if rec != protect && rec.State() == StatePending {
			count--
			size -= rec.Size()
		}
	}
	if idx.cfg.MaxRecordCount > 0 && count > idx.cfg.MaxRecordCount {
		return fmt.Errorf("%w: %d records cannot be evicted, cap %d", ErrDatabaseFull, count, idx.cfg.MaxRecordCount)
	}
	if idx.cfg.MaxDatabaseSize > 0 && size > idx.cfg.MaxDatabaseSize {
		return fmt.Errorf("%w: %d bytes cannot be evicted, cap %d", ErrDatabaseFull, size, idx.cfg.MaxDatabaseSize)
	}
	return nil
}

// enforceCapsLocked evicts records in retry order until the caps hold.
// protect is never evicted. Nothing is evicted unless the caps can be met.
func (idx *Index) enforceCapsLocked(protect *Record) error {
	if !idx.overCapsLocked() {
		return nil
	}
	if err := idx.fitLocked(protect); err != nil {
		return err
	}
	for idx.overCapsLocked() {
		victim := idx.frontLocked(protect)
		if victim == nil {
			return ErrDatabaseFull
		}
		idx.logger.Info("Evicting record to stay within limits",
			"record_id", victim.ID,
			"records", len(idx.records),
			"bytes", idx.size,
		)
		idx.removeLocked(victim)
		victim.Delete()
		idx.metrics.RecordEviction("capacity")
	}
	return nil
}

func (idx *Index) publishLocked() {
	idx.metrics.UpdateStore(len(idx.records), idx.size)
}
