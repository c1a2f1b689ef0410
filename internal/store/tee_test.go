package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/store/memory"
)

type failingJournal struct {
	recorded int
}

func (f *failingJournal) Record(context.Context, domain.JournalEntry) error {
	f.recorded++
	return errors.New("connection refused")
}

func (f *failingJournal) ListRecent(context.Context, int) ([]domain.JournalEntry, error) {
	return nil, errors.New("connection refused")
}

func (f *failingJournal) ListSince(context.Context, time.Time) ([]domain.JournalEntry, error) {
	return nil, errors.New("connection refused")
}

func TestTeeJournalMirrorFailureDoesNotSurface(t *testing.T) {
	primary := memory.NewJournal(10)
	mirror := &failingJournal{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tee := NewTeeJournal(primary, mirror, logger)

	entry := domain.JournalEntry{
		EntryID:    "e1",
		PoolID:     "lag_arb:main",
		Strategy:   domain.StrategyLagArb,
		Outcome:    "closed",
		RecordedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, tee.Record(context.Background(), entry))
	assert.Equal(t, 1, mirror.recorded)

	// Reads come from the primary even though the mirror errors.
	recent, err := tee.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "e1", recent[0].EntryID)
}
