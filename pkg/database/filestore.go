package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mercator-hq/backlog/pkg/report"

	"github.com/google/uuid"
)

// FileStore owns the database directory: it creates, scans and sweeps
// record files. It keeps no state of its own besides the path.
type FileStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    filepath.Clean(dir),
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the database directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Ensure checks that the directory exists, creating it when create is set.
func (s *FileStore) Ensure(create bool) error {
	info, err := os.Stat(s.dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return NewStorageError("open", s.dir, fmt.Errorf("not a directory"))
	case !errors.Is(err, fs.ErrNotExist):
		return NewStorageError("open", s.dir, err)
	case !create:
		return fmt.Errorf("%w: directory %s does not exist", ErrDisabled, s.dir)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return NewStorageError("create", s.dir, err)
	}
	s.logger.Info("Created database directory", "path", s.dir)
	return nil
}

// IsDependency reports whether path lives inside the database directory.
// Such attachments are owned by their record and deleted with it.
func (s *FileStore) IsDependency(path string) bool {
	return sameDir(filepath.Dir(path), s.dir)
}

// NewRecord builds an unsaved record for r. The report UUID becomes the
// record ID unless it is malformed or already used on disk.
func (s *FileStore) NewRecord(r *report.Report, hash string) (*Record, error) {
	payload, err := r.Marshal()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if parsed, err := uuid.Parse(r.UUID); err == nil && !s.exists(parsed.String()) {
		id = parsed.String()
	}

	createdAt := r.Timestamp
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	rec := newRecord(s.dir, id, hash, payload, r.Attachments, createdAt, s.logger)
	rec.AddedAt = s.now().UTC()
	return rec, nil
}

func (s *FileStore) exists(id string) bool {
	_, err := os.Stat(filepath.Join(s.dir, id+metadataSuffix))
	return err == nil
}

// LoadAll rebuilds every complete record from the directory in the order
// they were added: by stored sequence, then by store time.
// Metadata files that cannot be parsed are deleted. Records whose payload is
// missing are deleted with all their files.
func (s *FileStore) LoadAll() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, NewStorageError("scan", s.dir, err)
	}

	var records []*Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metadataSuffix) || strings.HasPrefix(name, tempPrefix) {
			continue
		}

		metaPath := filepath.Join(s.dir, name)
		rec, err := loadRecord(s.dir, metaPath, s.logger)
		if err != nil {
			s.logger.Warn("Dropping unreadable record metadata", "path", metaPath, "error", err)
			if rmErr := os.Remove(metaPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.logger.Warn("Failed to remove record metadata", "path", metaPath, "error", rmErr)
			}
			continue
		}
		if !rec.Valid() {
			s.logger.Warn("Dropping record with missing payload", "record_id", rec.ID, "path", rec.DataPath())
			rec.Delete()
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		if !a.AddedAt.Equal(b.AddedAt) {
			return a.AddedAt.Before(b.AddedAt)
		}
		return a.ID < b.ID
	})

	return records, nil
}

// RemoveOrphaned deletes every regular file in the directory that does not
// belong to one of known. A file belongs to a record when it is one of the
// record's attachments or when its name up to the last '-' is the record ID.
// It returns the number of files removed.
func (s *FileStore) RemoveOrphaned(known []*Record) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, NewStorageError("scan", s.dir, err)
	}

	ids := make(map[string]struct{}, len(known))
	attachments := make(map[string]struct{})
	for _, rec := range known {
		ids[rec.ID] = struct{}{}
		for _, a := range rec.attachments {
			if abs, err := filepath.Abs(a); err == nil {
				attachments[abs] = struct{}{}
			}
		}
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(s.dir, name)

		if !strings.HasPrefix(name, tempPrefix) {
			if abs, err := filepath.Abs(path); err == nil {
				if _, ok := attachments[abs]; ok {
					continue
				}
			}
			if dash := strings.LastIndexByte(name, '-'); dash > 0 {
				if _, ok := ids[name[:dash]]; ok {
					continue
				}
			}
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove orphaned file", "path", path, "error", err)
			continue
		}
		s.logger.Debug("Removed orphaned file", "path", path)
		removed++
	}

	return removed, nil
}

// TotalSize returns the bytes of every regular file in the directory,
// excluding in-progress temp files.
func (s *FileStore) TotalSize() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, NewStorageError("scan", s.dir, err)
	}

	var total int64
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
