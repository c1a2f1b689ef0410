package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrijal1/poly-trader/internal/domain"
)

func entryAt(id string, at time.Time) domain.JournalEntry {
	return domain.JournalEntry{
		EntryID:    id,
		PoolID:     "price_arbitrage:main",
		Strategy:   domain.StrategyArbitrage,
		Outcome:    "closed",
		RecordedAt: at,
	}
}

func TestJournalRecordAndListRecent(t *testing.T) {
	j := NewJournal(10)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(context.Background(), entryAt(fmt.Sprintf("e%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := j.ListRecent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "e4", recent[0].EntryID)
	assert.Equal(t, "e2", recent[2].EntryID)

	all, err := j.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestJournalEvictsOldestAtCapacity(t *testing.T) {
	j := NewJournal(3)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(context.Background(), entryAt(fmt.Sprintf("e%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	assert.Equal(t, 3, j.Len())
	recent, err := j.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "e4", recent[0].EntryID)
	assert.Equal(t, "e2", recent[2].EntryID)
}

func TestJournalListSince(t *testing.T) {
	j := NewJournal(10)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, j.Record(context.Background(), entryAt(fmt.Sprintf("e%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	since, err := j.ListSince(context.Background(), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, since, 2)
	// oldest first, boundary inclusive
	assert.Equal(t, "e2", since[0].EntryID)
	assert.Equal(t, "e3", since[1].EntryID)
}
