package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	dataSuffix     = "-data.json"
	metadataSuffix = "-record.json"
	tempPrefix     = ".tmp-"
)

// State is the lifecycle state of a stored record.
type State int

const (
	// StatePending records wait for delivery and may be evicted.
	StatePending State = iota
	// StateLocked records are handed to the delivery loop. They are never
	// evicted, deduplicated into or handed out again until released.
	StateLocked
	// StateRemoved records are gone from the index and from disk.
	StateRemoved
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLocked:
		return "locked"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// recordMetadata is the on-disk form of a record. It is written after the
// payload, so its presence implies a complete record.
type recordMetadata struct {
	ID          string    `json:"id"`
	Hash        string    `json:"hash,omitempty"`
	Data        string    `json:"data"`
	Attachments []string  `json:"attachments,omitempty"`
	Duplicates  int       `json:"duplicates"`
	CreatedAt   time.Time `json:"createdAt"`
	AddedAt     time.Time `json:"addedAt"`
	Seq         uint64    `json:"seq,omitempty"`
}

// Record is one stored report: a payload file, a metadata file and any
// attachments. Locked state and retry counts live in memory only.
type Record struct {
	ID   string
	Hash string
	// CreatedAt is the report's capture time, as supplied by the producer.
	CreatedAt time.Time
	// AddedAt is when the store accepted the record.
	AddedAt time.Time

	dir         string
	dataPath    string
	metaPath    string
	attachments []string
	logger      *slog.Logger

	mu         sync.RWMutex
	payload    []byte
	dataSize   int64
	attachSize int64
	metaSize   int64
	duplicates int
	retries    int
	state      State
	seq        uint64
}

func newRecord(dir, id, hash string, payload []byte, attachments []string, createdAt time.Time, logger *slog.Logger) *Record {
	return &Record{
		ID:          id,
		Hash:        hash,
		CreatedAt:   createdAt,
		dir:         dir,
		dataPath:    filepath.Join(dir, id+dataSuffix),
		metaPath:    filepath.Join(dir, id+metadataSuffix),
		attachments: append([]string(nil), attachments...),
		logger:      logger,
		payload:     payload,
		duplicates:  1,
	}
}

// DataPath returns the payload file path.
func (r *Record) DataPath() string { return r.dataPath }

// MetadataPath returns the metadata file path.
func (r *Record) MetadataPath() string { return r.metaPath }

// Attachments returns a copy of the attachment paths.
func (r *Record) Attachments() []string {
	return append([]string(nil), r.attachments...)
}

// DuplicateCount returns how many captured reports this record stands for.
func (r *Record) DuplicateCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.duplicates
}

// Retries returns the number of failed delivery attempts.
func (r *Record) Retries() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retries
}

// Size returns the payload, in-store attachment and metadata bytes.
func (r *Record) Size() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dataSize + r.attachSize + r.metaSize
}

// State returns the lifecycle state.
func (r *Record) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Locked reports whether the record is handed to the delivery loop.
func (r *Record) Locked() bool {
	return r.State() == StateLocked
}

// Payload returns the report payload, reading it from disk when it is not
// held in memory.
func (r *Record) Payload() ([]byte, error) {
	r.mu.RLock()
	payload := r.payload
	r.mu.RUnlock()
	if payload != nil {
		return payload, nil
	}

	data, err := os.ReadFile(r.dataPath)
	if err != nil {
		return nil, NewStorageError("read", r.dataPath, err)
	}
	return data, nil
}

// Resident reports whether the payload is held in memory.
func (r *Record) Resident() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.payload != nil
}

// Unload drops the in-memory payload. Later Payload calls read the file.
func (r *Record) Unload() {
	r.mu.Lock()
	r.payload = nil
	r.mu.Unlock()
}

// Valid reports whether the payload file still exists.
func (r *Record) Valid() bool {
	_, err := os.Stat(r.dataPath)
	return err == nil
}

// Save writes the payload and then the metadata. A failed save may leave
// partial files behind; call Delete to clean up.
func (r *Record) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.payload == nil {
		return fmt.Errorf("%w: record %s has no payload to save", ErrInvalidRecord, r.ID)
	}

	n, err := writeFileAtomic(r.dataPath, r.payload)
	if err != nil {
		return NewStorageError("save", r.dataPath, err)
	}
	r.dataSize = n
	r.attachSize = r.ownedAttachmentSize()

	if _, err := r.writeMetadataLocked(); err != nil {
		return err
	}
	return nil
}

// Delete removes the payload, the metadata and attachments stored inside
// the database directory. Failures are logged, never returned.
func (r *Record) Delete() {
	for _, path := range r.ownedFiles() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("Failed to remove record file",
				"record_id", r.ID,
				"path", path,
				"error", err,
			)
		}
	}
}

// ownedFiles lists the files Delete removes. Metadata goes first so a crash
// midway leaves an orphan payload rather than a dangling record.
func (r *Record) ownedFiles() []string {
	files := []string{r.metaPath, r.dataPath}
	for _, a := range r.attachments {
		if r.ownsAttachment(a) {
			files = append(files, a)
		}
	}
	return files
}

// ownsAttachment reports whether path lives in the database directory.
func (r *Record) ownsAttachment(path string) bool {
	return sameDir(filepath.Dir(path), r.dir)
}

func (r *Record) ownedAttachmentSize() int64 {
	var total int64
	for _, a := range r.attachments {
		if !r.ownsAttachment(a) {
			continue
		}
		if info, err := os.Stat(a); err == nil {
			total += info.Size()
		}
	}
	return total
}

// writeMetadataLocked rewrites the metadata file and returns the change in
// metadata size. Caller must hold r.mu.
func (r *Record) writeMetadataLocked() (int64, error) {
	meta := recordMetadata{
		ID:          r.ID,
		Hash:        r.Hash,
		Data:        filepath.Base(r.dataPath),
		Attachments: r.attachments,
		Duplicates:  r.duplicates,
		CreatedAt:   r.CreatedAt,
		AddedAt:     r.AddedAt,
		Seq:         r.seq,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return 0, NewStorageError("encode", r.metaPath, err)
	}

	n, err := writeFileAtomic(r.metaPath, data)
	if err != nil {
		return 0, NewStorageError("save", r.metaPath, err)
	}
	delta := n - r.metaSize
	r.metaSize = n
	return delta, nil
}

// increment records one more duplicate and persists the count. It returns
// the size change. A failed rewrite keeps the in-memory count.
func (r *Record) increment() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.duplicates++
	delta, err := r.writeMetadataLocked()
	if err != nil {
		r.logger.Warn("Failed to persist duplicate count",
			"record_id", r.ID,
			"duplicates", r.duplicates,
			"error", err,
		)
		return 0
	}
	return delta
}

func (r *Record) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Record) incrementRetries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
	return r.retries
}

// loadRecord reads a metadata file and rebuilds the record around it.
func loadRecord(dir, metaPath string, logger *slog.Logger) (*Record, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, NewStorageError("load", metaPath, err)
	}

	var meta recordMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, metaPath, err)
	}
	if meta.ID == "" || meta.Data == "" {
		return nil, fmt.Errorf("%w: %s: missing id or data file", ErrInvalidRecord, metaPath)
	}
	if !strings.HasPrefix(filepath.Base(metaPath), meta.ID) {
		return nil, fmt.Errorf("%w: %s: id %q does not match file name", ErrInvalidRecord, metaPath, meta.ID)
	}

	rec := newRecord(dir, meta.ID, meta.Hash, nil, meta.Attachments, meta.CreatedAt, logger)
	rec.dataPath = filepath.Join(dir, filepath.Base(meta.Data))
	rec.metaPath = metaPath
	if meta.Duplicates > 1 {
		rec.duplicates = meta.Duplicates
	}
	rec.AddedAt = meta.AddedAt
	rec.seq = meta.Seq
	rec.metaSize = int64(len(data))
	if info, err := os.Stat(rec.dataPath); err == nil {
		rec.dataSize = info.Size()
	}
	rec.attachSize = rec.ownedAttachmentSize()

	if rec.CreatedAt.IsZero() || rec.AddedAt.IsZero() {
		if info, err := os.Stat(metaPath); err == nil {
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = info.ModTime()
			}
			if rec.AddedAt.IsZero() {
				rec.AddedAt = info.ModTime()
			}
		}
	}

	return rec, nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	n, err := tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	return int64(n), nil
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
