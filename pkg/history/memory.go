package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps attempts in memory. Contents are lost on exit.
type MemoryStorage struct {
	mu       sync.RWMutex
	attempts []*Attempt
}

// NewMemoryStorage creates an empty in-memory ledger.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Record stores a copy of a.
func (s *MemoryStorage) Record(ctx context.Context, a *Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *a
	s.attempts = append(s.attempts, &c)
	return nil
}

// Query returns copies of the matching attempts, newest first.
func (s *MemoryStorage) Query(ctx context.Context, q *Query) ([]*Attempt, error) {
	matched := s.matching(q)

	start := 0
	if q != nil {
		start = q.Offset
	}
	if start >= len(matched) {
		return []*Attempt{}, nil
	}
	end := start + q.limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// Count returns the number of matching attempts.
func (s *MemoryStorage) Count(ctx context.Context, q *Query) (int64, error) {
	return int64(len(s.matching(q))), nil
}

// Prune drops attempts made before cutoff.
func (s *MemoryStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.attempts[:0]
	var removed int64
	for _, a := range s.attempts {
		if a.AttemptedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept
	return removed, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) matching(q *Query) []*Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Attempt
	for _, a := range s.attempts {
		if matches(a, q) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AttemptedAt.After(out[j].AttemptedAt)
	})
	return out
}

func matches(a *Attempt, q *Query) bool {
	if q == nil {
		return true
	}
	if q.RecordID != "" && a.RecordID != q.RecordID {
		return false
	}
	if q.Outcome != "" && a.Outcome != q.Outcome {
		return false
	}
	if q.Since != nil && a.AttemptedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && a.AttemptedAt.After(*q.Until) {
		return false
	}
	return true
}
