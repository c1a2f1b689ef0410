package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// BlobWriter is the narrow upload interface the archiver needs. *Writer
// satisfies it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver periodically snapshots new journal entries to object storage as
// JSONL. The journal stays authoritative; an upload failure is retried on the
// next cycle because the watermark only advances after a successful put.
type Archiver struct {
	writer  BlobWriter
	journal domain.Journal
	prefix  string
	logger  *slog.Logger

	// watermark is the instant up to which entries have been archived.
	watermark time.Time
}

// NewArchiver creates an Archiver rooted at the given key prefix.
func NewArchiver(writer BlobWriter, journal domain.Journal, prefix string, start time.Time, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = "journal"
	}
	return &Archiver{
		writer:    writer,
		journal:   journal,
		prefix:    prefix,
		logger:    logger.With("component", "archiver"),
		watermark: start,
	}
}

// Archive uploads every journal entry recorded since the last successful
// archive and returns the number of entries written. A cycle with nothing new
// uploads nothing.
func (a *Archiver) Archive(ctx context.Context, now time.Time) (int, error) {
	entries, err := a.journal.ListSince(ctx, a.watermark)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := a.archivePath(now)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	last := entries[len(entries)-1].RecordedAt
	a.watermark = last.Add(time.Nanosecond)

	a.logger.Info("journal archived", "path", path, "entries", len(entries))
	return len(entries), nil
}

// archivePath builds the object key, partitioned by day with a per-cycle
// timestamp:
//
//	journal/2026-03-01/093000.jsonl
func (a *Archiver) archivePath(now time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl",
		a.prefix,
		now.UTC().Format("2006-01-02"),
		now.UTC().Format("150405"),
	)
}

// marshalJSONL serialises entries as newline-delimited JSON, one compact
// line per entry.
func marshalJSONL(entries []domain.JournalEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("jsonl encode entry %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
