package domain

import (
	"context"
	"time"
)

// JournalEntry is one row of the closed-position / failed-attempt log. Every
// terminal outcome lands here; none are silently dropped.
type JournalEntry struct {
	EntryID    string
	PoolID     string
	Strategy   StrategyKind
	Position   Position
	Outcome    string // "closed", "entry_failed", "unwound", "cancelled"
	RecordedAt time.Time
}

// Journal records terminal position outcomes. The in-memory implementation is
// authoritative during a run; durable implementations mirror it best-effort.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
	ListRecent(ctx context.Context, limit int) ([]JournalEntry, error)
	// ListSince returns entries recorded at or after the given instant,
	// oldest first. Used by the archiver.
	ListSince(ctx context.Context, since time.Time) ([]JournalEntry, error)
}

// PoolStore mirrors pool state durably for post-run inspection. Write
// failures are logged and never fail a tick.
type PoolStore interface {
	Upsert(ctx context.Context, pool CapitalPool) error
	GetByID(ctx context.Context, poolID string) (CapitalPool, error)
	List(ctx context.Context) ([]CapitalPool, error)
	Delete(ctx context.Context, poolID string) error
}

// QuoteCache provides fast access to the latest quotes and reference
// observations, fed by the market-data feed.
type QuoteCache interface {
	SetQuote(ctx context.Context, q MarketQuote) error
	GetQuote(ctx context.Context, instrumentID string) (MarketQuote, error)
	SetReference(ctx context.Context, r ReferenceObservation) error
	GetReference(ctx context.Context, sourceID string) (ReferenceObservation, error)
}

// EventBus publishes position lifecycle events for external consumers
// (dashboards, notifiers).
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides exclusive sections keyed by name, used to fence
// concurrent engine replicas in live mode.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
