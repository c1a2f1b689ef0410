package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/store/memory"
)

type capturingWriter struct {
	puts map[string][]byte
	err  error
}

func (w *capturingWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	if w.puts == nil {
		w.puts = make(map[string][]byte)
	}
	w.puts[path] = buf.Bytes()
	return nil
}

func recordEntries(t *testing.T, j domain.Journal, base time.Time, ids ...string) {
	t.Helper()
	for i, id := range ids {
		require.NoError(t, j.Record(context.Background(), domain.JournalEntry{
			EntryID:    id,
			PoolID:     "lag_arb:main",
			Strategy:   domain.StrategyLagArb,
			Outcome:    "closed",
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestArchiverUploadsNewEntriesOnly(t *testing.T) {
	journal := memory.NewJournal(100)
	writer := &capturingWriter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	arch := NewArchiver(writer, journal, "journal", start, logger)

	recordEntries(t, journal, start, "e1", "e2")

	n, err := arch.Archive(context.Background(), start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, writer.puts, 1)

	var path string
	for p := range writer.puts {
		path = p
	}
	assert.Equal(t, "journal/2026-03-01/093000.jsonl", path)
	assert.Equal(t, 2, strings.Count(string(writer.puts[path]), "\n"))
	assert.Contains(t, string(writer.puts[path]), `"e1"`)

	// Second cycle with nothing new uploads nothing.
	n, err = arch.Archive(context.Background(), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, writer.puts, 1)

	// A later entry lands in the next object.
	recordEntries(t, journal, start.Add(45*time.Minute), "e3")
	n, err = arch.Archive(context.Background(), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, writer.puts, 2)
}

func TestArchiverRetriesAfterUploadFailure(t *testing.T) {
	journal := memory.NewJournal(100)
	writer := &capturingWriter{err: errors.New("bucket unavailable")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	arch := NewArchiver(writer, journal, "journal", start, logger)

	recordEntries(t, journal, start, "e1")

	_, err := arch.Archive(context.Background(), start.Add(time.Hour))
	require.Error(t, err)

	// Watermark did not advance; the entry ships in the next cycle.
	writer.err = nil
	n, err := arch.Archive(context.Background(), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
