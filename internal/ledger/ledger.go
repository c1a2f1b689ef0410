// Package ledger maintains the capital pools backing every strategy
// instance and tracked counterparty. It owns the reservation accounting:
// for every pool, reserved capital equals the sum of committed size over
// that pool's open positions, at every observable instant.
package ledger

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// Config bounds ledger behavior across all pools.
type Config struct {
	// MinOrderSize is the minimum tradable notional in USDC. Sized orders
	// below it are rejected outright.
	MinOrderSize float64
	// DegradeThreshold is the number of consecutive execution failures
	// after which a pool is suspended.
	DegradeThreshold int
	// DegradedClearAfter re-activates a degraded pool after this quiet
	// period. Zero disables automatic clearing.
	DegradedClearAfter time.Duration
}

// Ledger is the in-process authority on pool balances and reservations.
// All mutation goes through it; callers receive value copies only.
type Ledger struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	pools map[string]*domain.CapitalPool
}

// New creates an empty ledger.
func New(cfg Config, logger *slog.Logger) *Ledger {
	return &Ledger{
		cfg:    cfg,
		logger: logger.With("component", "ledger"),
		pools:  make(map[string]*domain.CapitalPool),
	}
}

// CreatePool registers a new pool. The pool id must be unused and the
// initial reservation zero.
func (l *Ledger) CreatePool(pool domain.CapitalPool) error {
	if pool.PoolID == "" {
		return fmt.Errorf("create pool: empty pool id")
	}
	if pool.Reserved != 0 {
		return fmt.Errorf("create pool %s: nonzero initial reservation", pool.PoolID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pools[pool.PoolID]; ok {
		return fmt.Errorf("create pool %s: %w", pool.PoolID, domain.ErrAlreadyExists)
	}
	if pool.Status == "" {
		pool.Status = domain.PoolStatusActive
	}
	cp := pool
	l.pools[pool.PoolID] = &cp

	l.logger.Info("pool created",
		"pool_id", pool.PoolID,
		"owner", pool.OwnerRef,
		"strategy", pool.Strategy,
		"balance", pool.Balance)
	return nil
}

// Pool returns a copy of the pool with the given id.
func (l *Ledger) Pool(poolID string) (domain.CapitalPool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.pools[poolID]
	if !ok {
		return domain.CapitalPool{}, fmt.Errorf("pool %s: %w", poolID, domain.ErrNotFound)
	}
	return *p, nil
}

// Pools returns copies of every pool, in no particular order.
func (l *Ledger) Pools() []domain.CapitalPool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.CapitalPool, 0, len(l.pools))
	for _, p := range l.pools {
		out = append(out, *p)
	}
	return out
}

// SizeOrder clamps a signal's raw size hint into an order size the pool can
// back. It is read-only and idempotent: calling it twice with the same
// inputs and no intervening commit yields the same size. The caller commits
// the reservation via Reserve only after the order actually fills.
//
// The approved size is min(hint x confidence, available, balance x
// max_position_fraction, counterparty cap), rejected when it falls below
// the minimum tradable unit.
func (l *Ledger) SizeOrder(poolID string, sig domain.Signal, now time.Time) (float64, error) {
	if !sig.Actionable() {
		return 0, fmt.Errorf("size order pool %s: %w", poolID, domain.ErrNotActionable)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("size order pool %s: %w", poolID, domain.ErrNotFound)
	}

	switch p.Status {
	case domain.PoolStatusDegraded:
		return 0, fmt.Errorf("size order pool %s: %w", poolID, domain.ErrDegradedPool)
	case domain.PoolStatusDraining:
		return 0, fmt.Errorf("size order pool %s: %w", poolID, domain.ErrPoolDraining)
	}
	if now.Before(p.CooldownUntil) {
		return 0, fmt.Errorf("size order pool %s: %w", poolID, domain.ErrPoolCooldown)
	}

	available := p.Available()
	if available <= 0 {
		return 0, fmt.Errorf("size order pool %s: %w", poolID, domain.ErrInsufficientCapital)
	}

	limit := math.Min(available, p.Balance*p.MaxPositionFraction)
	if p.MaxCounterpartyFraction > 0 && p.CounterpartyBankroll > 0 {
		limit = math.Min(limit, p.CounterpartyBankroll*p.MaxCounterpartyFraction)
	}

	approved := math.Min(sig.RawSizeHint*sig.Confidence, limit)
	if approved < l.cfg.MinOrderSize {
		return 0, fmt.Errorf("size order pool %s: approved %.4f: %w",
			poolID, approved, domain.ErrBelowMinimum)
	}
	return approved, nil
}

// Reserve commits capital for a filled position. The availability check and
// the commit are atomic per pool, so two concurrent signals can never spend
// the same available capital twice.
func (l *Ledger) Reserve(poolID string, size float64) error {
	if size <= 0 {
		return fmt.Errorf("reserve pool %s: nonpositive size %.4f", poolID, size)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("reserve pool %s: %w", poolID, domain.ErrNotFound)
	}
	if size > p.Available() {
		return fmt.Errorf("reserve pool %s: %.4f exceeds available %.4f: %w",
			poolID, size, p.Available(), domain.ErrInsufficientCapital)
	}
	p.Reserved += size
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Release returns a closed position's committed capital to the pool and
// applies its realized PnL to the balance.
func (l *Ledger) Release(poolID string, committed, realizedPnL float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("release pool %s: %w", poolID, domain.ErrNotFound)
	}
	if committed > p.Reserved {
		l.logger.Warn("release exceeds reservation, clamping",
			"pool_id", poolID, "committed", committed, "reserved", p.Reserved)
		committed = p.Reserved
	}
	p.Reserved -= committed
	p.Balance += realizedPnL
	if p.Balance < 0 {
		l.logger.Warn("pool balance went negative, clamping to zero",
			"pool_id", poolID, "pnl", realizedPnL)
		p.Balance = 0
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordFailure counts one execution failure against the pool. It reports
// whether the failure crossed the degrade threshold and suspended the pool.
func (l *Ledger) RecordFailure(poolID string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return false, fmt.Errorf("record failure pool %s: %w", poolID, domain.ErrNotFound)
	}
	p.ConsecutiveFailures++
	p.UpdatedAt = now

	if p.Status == domain.PoolStatusActive && p.ConsecutiveFailures >= l.cfg.DegradeThreshold {
		p.Status = domain.PoolStatusDegraded
		at := now
		p.DegradedAt = &at
		l.logger.Warn("pool degraded after consecutive failures",
			"pool_id", poolID, "failures", p.ConsecutiveFailures)
		return true, nil
	}
	return false, nil
}

// RecordSuccess resets the pool's failure streak.
func (l *Ledger) RecordSuccess(poolID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("record success pool %s: %w", poolID, domain.ErrNotFound)
	}
	p.ConsecutiveFailures = 0
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ClearDegraded re-activates a degraded pool and resets its failure streak.
func (l *Ledger) ClearDegraded(poolID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("clear pool %s: %w", poolID, domain.ErrNotFound)
	}
	if p.Status != domain.PoolStatusDegraded {
		return nil
	}
	p.Status = domain.PoolStatusActive
	p.ConsecutiveFailures = 0
	p.DegradedAt = nil
	p.UpdatedAt = time.Now().UTC()
	l.logger.Info("pool degraded status cleared", "pool_id", poolID)
	return nil
}

// ReviveDegraded clears every degraded pool whose quiet period has elapsed.
// Called by the scheduler at tick boundaries; a no-op when automatic
// clearing is disabled.
func (l *Ledger) ReviveDegraded(now time.Time) {
	if l.cfg.DegradedClearAfter <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, p := range l.pools {
		if p.Status != domain.PoolStatusDegraded || p.DegradedAt == nil {
			continue
		}
		if now.Sub(*p.DegradedAt) < l.cfg.DegradedClearAfter {
			continue
		}
		p.Status = domain.PoolStatusActive
		p.ConsecutiveFailures = 0
		p.DegradedAt = nil
		p.UpdatedAt = now
		l.logger.Info("pool revived after quiet period", "pool_id", id)
	}
}

// SetCooldown blocks new entries from the pool until the given instant.
func (l *Ledger) SetCooldown(poolID string, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("set cooldown pool %s: %w", poolID, domain.ErrNotFound)
	}
	p.CooldownUntil = until
	return nil
}

// Drain marks the pool as draining: no new entries, removed once every open
// position closes.
func (l *Ledger) Drain(poolID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("drain pool %s: %w", poolID, domain.ErrNotFound)
	}
	if p.Status == domain.PoolStatusDraining {
		return nil
	}
	p.Status = domain.PoolStatusDraining
	p.UpdatedAt = time.Now().UTC()
	l.logger.Info("pool draining", "pool_id", poolID, "owner", p.OwnerRef)
	return nil
}

// Remove deletes a pool. A pool with capital still reserved against open
// positions is never force-removed.
func (l *Ledger) Remove(poolID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("remove pool %s: %w", poolID, domain.ErrNotFound)
	}
	if p.Reserved > 0 {
		return fmt.Errorf("remove pool %s: %.4f still reserved", poolID, p.Reserved)
	}
	delete(l.pools, poolID)
	l.logger.Info("pool removed", "pool_id", poolID, "owner", p.OwnerRef)
	return nil
}

// SetBalance reallocates the pool to a new balance. The balance may never
// drop below the capital currently reserved.
func (l *Ledger) SetBalance(poolID string, balance float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("set balance pool %s: %w", poolID, domain.ErrNotFound)
	}
	if balance < p.Reserved {
		return fmt.Errorf("set balance pool %s: %.4f below reserved %.4f",
			poolID, balance, p.Reserved)
	}
	p.Balance = balance
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// SetCounterpartyBankroll refreshes the tracked entity's observed bankroll.
func (l *Ledger) SetCounterpartyBankroll(poolID string, bankroll float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pools[poolID]
	if !ok {
		return fmt.Errorf("set bankroll pool %s: %w", poolID, domain.ErrNotFound)
	}
	p.CounterpartyBankroll = bankroll
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// CheckInvariant verifies that every pool's reservation equals the open
// committed size the lifecycle manager reports for it. openCommitted maps
// pool id to the sum of committed size over that pool's open positions.
func (l *Ledger) CheckInvariant(openCommitted map[string]float64) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	const tolerance = 1e-9
	for id, p := range l.pools {
		want := openCommitted[id]
		if math.Abs(p.Reserved-want) > tolerance {
			return fmt.Errorf("pool %s: reserved %.6f, open committed %.6f",
				id, p.Reserved, want)
		}
		if p.Reserved > p.Balance+tolerance {
			return fmt.Errorf("pool %s: reserved %.6f exceeds balance %.6f",
				id, p.Reserved, p.Balance)
		}
	}
	return nil
}
