package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// JournalStore implements domain.Journal using PostgreSQL. Queryable fields
// are stored as columns; the full position is kept alongside as JSONB.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Record inserts one journal entry. Duplicate entry IDs are ignored so a
// mirrored write can safely retry.
func (s *JournalStore) Record(ctx context.Context, e domain.JournalEntry) error {
	posJSON, err := json.Marshal(e.Position)
	if err != nil {
		return fmt.Errorf("postgres: marshal position %s: %w", e.Position.PositionID, err)
	}

	const query = `
		INSERT INTO journal_entries (
			entry_id, pool_id, strategy, outcome,
			position_id, instrument, realized_pnl, position, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (entry_id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		e.EntryID, e.PoolID, string(e.Strategy), e.Outcome,
		e.Position.PositionID, e.Position.InstrumentID,
		e.Position.RealizedPnL, posJSON, e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record journal entry %s: %w", e.EntryID, err)
	}
	return nil
}

const journalSelectCols = `entry_id, pool_id, strategy, outcome, position, recorded_at`

// ListRecent returns up to limit entries, newest first.
func (s *JournalStore) ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+journalSelectCols+` FROM journal_entries
		 ORDER BY recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent journal entries: %w", err)
	}
	defer rows.Close()

	return scanJournalRows(rows)
}

// ListSince returns entries recorded at or after since, oldest first.
func (s *JournalStore) ListSince(ctx context.Context, since time.Time) ([]domain.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+journalSelectCols+` FROM journal_entries
		 WHERE recorded_at >= $1 ORDER BY recorded_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal entries since %s: %w", since, err)
	}
	defer rows.Close()

	return scanJournalRows(rows)
}

func scanJournalRows(rows pgx.Rows) ([]domain.JournalEntry, error) {
	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		var strategy string
		var posJSON []byte

		if err := rows.Scan(&e.EntryID, &e.PoolID, &strategy, &e.Outcome, &posJSON, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal entry: %w", err)
		}
		e.Strategy = domain.StrategyKind(strategy)
		if err := json.Unmarshal(posJSON, &e.Position); err != nil {
			return nil, fmt.Errorf("postgres: decode position for entry %s: %w", e.EntryID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.Journal = (*JournalStore)(nil)
