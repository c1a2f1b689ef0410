// Package memory provides the in-memory journal that is authoritative for
// the lifetime of a run. Durable stores mirror it best-effort.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// DefaultCapacity bounds the journal when no explicit capacity is given.
const DefaultCapacity = 10_000

// Journal is a bounded in-memory journal. When full, the oldest entries are
// evicted first.
type Journal struct {
	mu      sync.RWMutex
	entries []domain.JournalEntry
	cap     int
}

// NewJournal creates a journal holding at most capacity entries. A
// non-positive capacity falls back to DefaultCapacity.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{cap: capacity}
}

// Record appends an entry, evicting the oldest when at capacity.
func (j *Journal) Record(_ context.Context, e domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) == j.cap {
		copy(j.entries, j.entries[1:])
		j.entries = j.entries[:j.cap-1]
	}
	j.entries = append(j.entries, e)
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (j *Journal) ListRecent(_ context.Context, limit int) ([]domain.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if limit <= 0 || limit > len(j.entries) {
		limit = len(j.entries)
	}
	out := make([]domain.JournalEntry, 0, limit)
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}

// ListSince returns entries recorded at or after since, oldest first.
func (j *Journal) ListSince(_ context.Context, since time.Time) ([]domain.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []domain.JournalEntry
	for _, e := range j.entries {
		if !e.RecordedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

var _ domain.Journal = (*Journal)(nil)
