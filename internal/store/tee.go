// Package store composes journal implementations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// TeeJournal writes every entry to the primary journal and mirrors it to a
// durable secondary. Reads are served from the primary; mirror failures are
// logged and never surfaced, the primary stays authoritative.
type TeeJournal struct {
	primary domain.Journal
	mirror  domain.Journal
	logger  *slog.Logger
}

// NewTeeJournal wraps primary with a best-effort mirror.
func NewTeeJournal(primary, mirror domain.Journal, logger *slog.Logger) *TeeJournal {
	return &TeeJournal{
		primary: primary,
		mirror:  mirror,
		logger:  logger.With("component", "journal.tee"),
	}
}

func (t *TeeJournal) Record(ctx context.Context, e domain.JournalEntry) error {
	if err := t.primary.Record(ctx, e); err != nil {
		return err
	}
	if err := t.mirror.Record(ctx, e); err != nil {
		t.logger.Warn("journal mirror write failed",
			"entry_id", e.EntryID,
			"pool_id", e.PoolID,
			"error", err)
	}
	return nil
}

func (t *TeeJournal) ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	return t.primary.ListRecent(ctx, limit)
}

func (t *TeeJournal) ListSince(ctx context.Context, since time.Time) ([]domain.JournalEntry, error) {
	return t.primary.ListSince(ctx, since)
}

var _ domain.Journal = (*TeeJournal)(nil)
