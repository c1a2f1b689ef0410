package domain

import "time"

// PoolStatus is the lifecycle state of a capital pool.
type PoolStatus string

const (
	// PoolStatusActive pools accept new positions.
	PoolStatusActive PoolStatus = "active"
	// PoolStatusDraining pools accept no new positions and are removed once
	// every open position has closed. Set by the rebalancer when the owning
	// entity no longer qualifies.
	PoolStatusDraining PoolStatus = "draining"
	// PoolStatusDegraded pools are suspended after repeated execution
	// failures. Entries resume when the pool is cleared.
	PoolStatusDegraded PoolStatus = "degraded"
)

// CapitalPool is an isolated capital allocation backing one strategy instance
// or one tracked counterparty. Balance and reservations are in USDC.
//
// Invariant: Reserved <= Balance, and Reserved equals the sum of
// CommittedSize over the pool's open positions at every observable instant.
type CapitalPool struct {
	PoolID string
	// OwnerRef identifies what the pool backs: a strategy id or a tracked
	// entity (trader) id.
	OwnerRef string
	Strategy StrategyKind
	Balance  float64
	Reserved float64
	// MaxPositionFraction caps a single position at this fraction of Balance.
	MaxPositionFraction float64
	// MaxCounterpartyFraction caps a single position at this fraction of the
	// tracked counterparty's observed bankroll. Zero disables the cap.
	MaxCounterpartyFraction float64
	// CounterpartyBankroll is the tracked entity's last known bankroll,
	// refreshed by the rebalancer. Zero when the pool has no counterparty.
	CounterpartyBankroll float64
	Status               PoolStatus
	// ConsecutiveFailures counts execution failures since the last success;
	// crossing the configured threshold degrades the pool.
	ConsecutiveFailures int
	// DegradedAt records when the pool entered degraded status.
	DegradedAt *time.Time
	// CooldownUntil blocks new entries until this instant (set after a
	// lag-arbitrage exit).
	CooldownUntil time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Available returns the capital not committed to open positions.
func (p CapitalPool) Available() float64 {
	return p.Balance - p.Reserved
}

// AcceptsEntries reports whether the pool may open new positions at now.
func (p CapitalPool) AcceptsEntries(now time.Time) bool {
	return p.Status == PoolStatusActive && !now.Before(p.CooldownUntil)
}

// StrategyKind identifies one of the engine's strategy families.
type StrategyKind string

const (
	StrategyArbitrage StrategyKind = "price_arbitrage"
	StrategyBreakout  StrategyKind = "breakout"
	StrategyLagArb    StrategyKind = "lag_arb"
	StrategyCopy      StrategyKind = "copy"
	StrategyCounter   StrategyKind = "counter"
)
