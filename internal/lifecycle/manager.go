// Package lifecycle owns every position from entry to terminal state. All
// order traffic flows through it; nothing else touches the execution port.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/ledger"
)

// EventsChannel is the bus channel lifecycle events are published on.
const EventsChannel = "lifecycle.events"

// Config tunes the lifecycle manager.
type Config struct {
	Mode domain.ExecMode
	// ExecTimeout bounds every execution-port call. Exceeding it is treated
	// as a rejection after a cancel attempt.
	ExecTimeout time.Duration
	// ConvergenceTolerance closes a position when the market has moved to
	// within this distance of the entry fair value.
	ConvergenceTolerance float64
	// StalenessBound applies to quotes used for exit evaluation. A stale
	// quote skips price exits; the max-hold exit fires regardless.
	StalenessBound time.Duration
	// LagCooldown blocks the pool from new entries for this long after a
	// lag-arbitrage position closes.
	LagCooldown time.Duration
}

// Manager is the position state machine:
//
//	pending → open → closing → closed
//	pending → closed                    (rejection or timeout, no reservation)
//	open    → failed_unwind → closed    (paired-leg failure, forced flatten)
//
// Within one pool, transitions are strictly sequential; the scheduler never
// runs two ticks for the same pool concurrently. The manager's own lock only
// guards the position map across pools.
type Manager struct {
	cfg     Config
	ledger  *ledger.Ledger
	exec    domain.Execution
	journal domain.Journal
	bus     domain.EventBus
	logger  *slog.Logger

	mu   sync.Mutex
	open map[string]*domain.Position
}

// New creates the manager. bus may be nil.
func New(cfg Config, led *ledger.Ledger, exec domain.Execution, journal domain.Journal, bus domain.EventBus, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		ledger:  led,
		exec:    exec,
		journal: journal,
		bus:     bus,
		logger:  logger.With("component", "lifecycle"),
		open:    make(map[string]*domain.Position),
	}
}

// OpenFromSignal turns a sized signal into a position. size is the approved
// notional from the ledger; the reservation is committed only after the
// entry actually fills, so a retry after rejection can never double-reserve.
//
// For buy_both signals the two legs are entered back to back. A single-leg
// fill with a rejected pair is immediately flattened regardless of price:
// the risk-free premise no longer holds.
func (m *Manager) OpenFromSignal(ctx context.Context, pool domain.CapitalPool, sig domain.Signal, size float64, now time.Time) (domain.Position, error) {
	if sig.Direction == domain.DirectionBuyBoth {
		return m.openPaired(ctx, pool, sig, size, now)
	}
	return m.openSingle(ctx, pool, sig, size, now)
}

func (m *Manager) openSingle(ctx context.Context, pool domain.CapitalPool, sig domain.Signal, size float64, now time.Time) (domain.Position, error) {
	if sig.LimitPrice <= 0 {
		return domain.Position{}, fmt.Errorf("open %s: no limit price", sig.InstrumentID)
	}
	shares := size / sig.LimitPrice

	pos := &domain.Position{
		PositionID:      uuid.NewString(),
		PoolID:          pool.PoolID,
		Strategy:        pool.Strategy,
		InstrumentID:    sig.InstrumentID,
		Direction:       sig.Direction,
		FairValue:       sig.LimitPrice + sig.Edge,
		MaxHold:         sig.MaxHold,
		State:           domain.PositionPending,
		OpenedAt:        now,
		LastEvaluatedAt: now,
	}

	fill, late, err := m.submit(ctx, domain.OrderRequest{
		ClientOrderID: pos.PositionID,
		InstrumentID:  sig.InstrumentID,
		Direction:     sig.Direction,
		Size:          shares,
		PriceLimit:    sig.LimitPrice,
		Mode:          m.cfg.Mode,
	})
	if err != nil {
		m.failEntry(ctx, pos, now, err)
		return *pos, err
	}

	cost := fill.FillSize * fill.FillPrice
	m.mu.Lock()
	if rerr := m.ledger.Reserve(pool.PoolID, cost); rerr != nil {
		m.mu.Unlock()
		// Filled but unbackable: capital moved under us. Flatten now.
		m.logger.Error("fill could not be reserved, flattening",
			"position_id", pos.PositionID, "pool_id", pool.PoolID, "error", rerr)
		m.flattenUnreserved(ctx, pos, fill, now)
		return *pos, rerr
	}
	pos.State = domain.PositionOpen
	pos.CommittedSize = cost
	pos.EntryPrice = fill.FillPrice
	pos.OrderRef = fill.OrderRef
	if sig.TakeProfitPct > 0 {
		tp := fill.FillPrice * (1 + sig.TakeProfitPct)
		pos.TakeProfit = &tp
	}
	if sig.StopLossPct > 0 {
		sl := fill.FillPrice * (1 - sig.StopLossPct)
		pos.StopLoss = &sl
	}
	m.open[pos.PositionID] = pos
	m.mu.Unlock()
	_ = m.ledger.RecordSuccess(pool.PoolID)

	if late {
		// Fill landed after our cancel. We hold exposure a newer signal
		// contradicted, so flatten it rather than keep it.
		m.logger.Warn("late fill after cancel, unwinding",
			"position_id", pos.PositionID, "instrument", pos.InstrumentID)
		m.setState(pos, domain.PositionFailedUnwind)
		m.flatten(ctx, pos, now)
		return *pos, nil
	}

	m.logger.Info("position opened",
		"position_id", pos.PositionID,
		"pool_id", pool.PoolID,
		"instrument", pos.InstrumentID,
		"direction", pos.Direction,
		"committed", pos.CommittedSize,
		"entry_price", pos.EntryPrice)
	m.publish(ctx, "opened", *pos)
	return *pos, nil
}

func (m *Manager) openPaired(ctx context.Context, pool domain.CapitalPool, sig domain.Signal, size float64, now time.Time) (domain.Position, error) {
	combined := sig.LimitPrice + sig.PairedLimitPrice
	if combined <= 0 {
		return domain.Position{}, fmt.Errorf("open pair %s/%s: no limit prices",
			sig.InstrumentID, sig.PairedInstrumentID)
	}
	// Equal share counts on both legs; payoff at resolution is shares x 1.
	shares := size / combined

	pos := &domain.Position{
		PositionID:         uuid.NewString(),
		PoolID:             pool.PoolID,
		Strategy:           pool.Strategy,
		InstrumentID:       sig.InstrumentID,
		PairedInstrumentID: sig.PairedInstrumentID,
		Direction:          domain.DirectionBuyBoth,
		MaxHold:            sig.MaxHold,
		State:              domain.PositionPending,
		OpenedAt:           now,
		LastEvaluatedAt:    now,
	}

	fillA, lateA, err := m.submit(ctx, domain.OrderRequest{
		ClientOrderID: pos.PositionID + "-a",
		InstrumentID:  sig.InstrumentID,
		Direction:     domain.DirectionBuyYes,
		Size:          shares,
		PriceLimit:    sig.LimitPrice,
		Mode:          m.cfg.Mode,
	})
	if err != nil {
		// Nothing filled; plain failed entry.
		m.failEntry(ctx, pos, now, err)
		return *pos, err
	}

	costA := fillA.FillSize * fillA.FillPrice
	m.mu.Lock()
	if rerr := m.ledger.Reserve(pool.PoolID, costA); rerr != nil {
		m.mu.Unlock()
		m.flattenUnreserved(ctx, pos, fillA, now)
		return *pos, rerr
	}
	pos.CommittedSize = costA
	pos.EntryPrice = fillA.FillPrice
	pos.OrderRef = fillA.OrderRef
	pos.State = domain.PositionOpen
	m.open[pos.PositionID] = pos
	m.mu.Unlock()

	if lateA {
		// Leg A filled after our cancel; do not even attempt the pair.
		m.logger.Warn("late fill on first leg, unwinding",
			"position_id", pos.PositionID, "instrument", sig.InstrumentID)
		m.setState(pos, domain.PositionFailedUnwind)
		m.flatten(ctx, pos, now)
		return *pos, fmt.Errorf("leg %s filled after cancel: %w",
			sig.InstrumentID, domain.ErrPartialFill)
	}

	fillB, _, err := m.submit(ctx, domain.OrderRequest{
		ClientOrderID: pos.PositionID + "-b",
		InstrumentID:  sig.PairedInstrumentID,
		Direction:     domain.DirectionBuyNo,
		Size:          shares,
		PriceLimit:    sig.PairedLimitPrice,
		Mode:          m.cfg.Mode,
	})
	if err != nil {
		// One leg on, the pair rejected: single-sided exposure the strategy
		// never priced. Flatten the filled leg ahead of everything else.
		m.logger.Warn("paired leg failed, forcing unwind",
			"position_id", pos.PositionID,
			"filled_leg", sig.InstrumentID,
			"rejected_leg", sig.PairedInstrumentID,
			"error", err)
		m.setState(pos, domain.PositionFailedUnwind)
		_, _ = m.ledger.RecordFailure(pool.PoolID, now)
		m.flatten(ctx, pos, now)
		return *pos, fmt.Errorf("pair leg %s: %w", sig.PairedInstrumentID, domain.ErrPartialFill)
	}

	// Reserve and commit the second leg in one critical section so the
	// invariant check never sees the reservation without its committed size.
	costB := fillB.FillSize * fillB.FillPrice
	m.mu.Lock()
	rerr := m.ledger.Reserve(pool.PoolID, costB)
	if rerr == nil {
		pos.CommittedSize += costB
		pos.PairedEntryPrice = fillB.FillPrice
	} else {
		pos.State = domain.PositionFailedUnwind
	}
	m.mu.Unlock()
	if rerr != nil {
		m.flatten(ctx, pos, now)
		return *pos, rerr
	}
	_ = m.ledger.RecordSuccess(pool.PoolID)

	m.logger.Info("paired position opened",
		"position_id", pos.PositionID,
		"pool_id", pool.PoolID,
		"yes_leg", sig.InstrumentID,
		"no_leg", sig.PairedInstrumentID,
		"committed", pos.CommittedSize,
		"combined_entry", pos.EntryPrice+pos.PairedEntryPrice)
	m.publish(ctx, "opened", *pos)
	return *pos, nil
}

// EvaluateExits walks the pool's non-terminal positions once. Failed unwinds
// are flattened before anything else; then each open position is checked
// against its exit conditions in priority order: max hold first (time exits
// are unconditional and must never be starved by a price condition), then
// convergence and take profit, then stop loss. One position's failure never
// blocks the rest of the pool.
func (m *Manager) EvaluateExits(ctx context.Context, poolID string, md domain.MarketData, now time.Time) {
	for _, pos := range m.poolPositions(poolID) {
		if pos.State == domain.PositionFailedUnwind {
			m.flatten(ctx, pos, now)
		}
	}

	for _, pos := range m.poolPositions(poolID) {
		if pos.State != domain.PositionOpen {
			continue
		}
		m.touch(pos, now)

		if pos.MaxHold > 0 && pos.HeldFor(now) >= pos.MaxHold {
			m.close(ctx, pos, domain.ExitMaxHold, 0, now)
			continue
		}
		if pos.Direction == domain.DirectionBuyBoth {
			// Both legs held to resolution; the combined payoff is fixed at
			// entry, so price exits do not apply. SettleResolved pays the
			// pair out once the market expires.
			continue
		}

		quote, err := md.GetQuote(ctx, pos.InstrumentID)
		if err != nil || quote.BestBid <= 0 || quote.OlderThan(now, m.cfg.StalenessBound) {
			continue
		}
		bid := quote.BestBid

		switch {
		case pos.TakeProfit != nil && bid >= *pos.TakeProfit:
			m.close(ctx, pos, domain.ExitTakeProfit, bid, now)
		case pos.FairValue > 0 && math.Abs(bid-pos.FairValue) <= m.cfg.ConvergenceTolerance:
			m.close(ctx, pos, domain.ExitConverged, bid, now)
		case pos.StopLoss != nil && bid <= *pos.StopLoss:
			m.close(ctx, pos, domain.ExitStopLoss, bid, now)
		}
	}
}

// SettleResolved pays out held-to-resolution pairs on an expired market.
// A full YES+NO pair redeems at one USDC per share whichever way the event
// resolves, so the proceeds are the share count and the pool's reserved
// capital is released without any exit order.
func (m *Manager) SettleResolved(ctx context.Context, poolID, instrumentID string, now time.Time) {
	for _, pos := range m.poolPositions(poolID) {
		if pos.State != domain.PositionOpen || pos.Direction != domain.DirectionBuyBoth {
			continue
		}
		if pos.InstrumentID != instrumentID && pos.PairedInstrumentID != instrumentID {
			continue
		}
		m.settle(ctx, pos, domain.ExitResolved, m.committedShares(pos), now)
	}
}

// close sells the position at priceLimit (zero means take the book). On a
// rejected exit the position returns to open and is retried next tick.
func (m *Manager) close(ctx context.Context, pos *domain.Position, reason domain.ExitReason, priceLimit float64, now time.Time) {
	m.setState(pos, domain.PositionClosing)

	entry := pos.EntryPrice
	if pos.Direction == domain.DirectionBuyBoth {
		entry = pos.EntryPrice + pos.PairedEntryPrice
	}
	shares := pos.CommittedSize / entry

	proceeds, err := m.sellLegs(ctx, pos, shares, priceLimit)
	if err != nil {
		m.logger.Warn("exit order failed, will retry next tick",
			"position_id", pos.PositionID, "reason", reason, "error", err)
		m.setState(pos, domain.PositionOpen)
		_, _ = m.ledger.RecordFailure(pos.PoolID, now)
		return
	}

	m.settle(ctx, pos, reason, proceeds, now)
}

// flatten force-sells whatever the position holds, regardless of price.
// Used for the failed_unwind branch; if the flatten itself fails the
// position stays failed_unwind and is retried at the top of the next tick.
func (m *Manager) flatten(ctx context.Context, pos *domain.Position, now time.Time) {
	shares := 0.0
	if pos.EntryPrice > 0 {
		shares = m.committedShares(pos)
	}
	proceeds, err := m.sellLegs(ctx, pos, shares, 0)
	if err != nil {
		m.logger.Error("forced unwind failed, will retry",
			"position_id", pos.PositionID, "instrument", pos.InstrumentID, "error", err)
		_, _ = m.ledger.RecordFailure(pos.PoolID, now)
		return
	}
	m.settle(ctx, pos, domain.ExitForcedUnwind, proceeds, now)
}

// committedShares recovers the share count from committed notional. For a
// failed_unwind pair only the first leg is held, priced at EntryPrice.
func (m *Manager) committedShares(pos *domain.Position) float64 {
	entry := pos.EntryPrice
	if pos.Direction == domain.DirectionBuyBoth && pos.PairedEntryPrice > 0 {
		entry += pos.PairedEntryPrice
	}
	return pos.CommittedSize / entry
}

// sellLegs submits the exit order, or both exit orders for a fully paired
// position. Returns total sale proceeds in USDC.
func (m *Manager) sellLegs(ctx context.Context, pos *domain.Position, shares, priceLimit float64) (float64, error) {
	fill, _, err := m.submit(ctx, domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		InstrumentID:  pos.InstrumentID,
		Direction:     domain.DirectionSell,
		Size:          shares,
		PriceLimit:    priceLimit,
		Mode:          m.cfg.Mode,
	})
	if err != nil {
		return 0, err
	}
	proceeds := fill.FillSize * fill.FillPrice

	if pos.Direction == domain.DirectionBuyBoth && pos.PairedEntryPrice > 0 && pos.PairedInstrumentID != "" {
		pairFill, _, err := m.submit(ctx, domain.OrderRequest{
			ClientOrderID: uuid.NewString(),
			InstrumentID:  pos.PairedInstrumentID,
			Direction:     domain.DirectionSell,
			Size:          shares,
			PriceLimit:    priceLimit,
			Mode:          m.cfg.Mode,
		})
		if err != nil {
			// First leg already sold; settle its share of the reservation
			// and carry the remaining leg as a single-sided position for
			// the retry.
			sold := shares * pos.EntryPrice
			m.mu.Lock()
			_ = m.ledger.Release(pos.PoolID, sold, proceeds-sold)
			pos.CommittedSize -= sold
			pos.InstrumentID, pos.PairedInstrumentID = pos.PairedInstrumentID, ""
			pos.EntryPrice, pos.PairedEntryPrice = pos.PairedEntryPrice, 0
			pos.Direction = domain.DirectionBuyNo
			m.mu.Unlock()
			return 0, err
		}
		proceeds += pairFill.FillSize * pairFill.FillPrice
	}
	return proceeds, nil
}

// settle finalizes a position whose exit filled: releases the reservation,
// applies realized PnL, journals the outcome, and drops it from the active
// set.
func (m *Manager) settle(ctx context.Context, pos *domain.Position, reason domain.ExitReason, proceeds float64, now time.Time) {
	pnl := proceeds - pos.CommittedSize
	exitPrice := 0.0
	if shares := m.committedShares(pos); shares > 0 {
		exitPrice = proceeds / shares
	}

	// Release and untrack in one critical section, mirroring the entry
	// side: the invariant check must never see one without the other.
	m.mu.Lock()
	releaseErr := m.ledger.Release(pos.PoolID, pos.CommittedSize, pnl)
	pos.State = domain.PositionClosed
	pos.ExitReason = &reason
	pos.ExitPrice = &exitPrice
	pos.RealizedPnL = &pnl
	closedAt := now
	pos.ClosedAt = &closedAt
	delete(m.open, pos.PositionID)
	m.mu.Unlock()

	if releaseErr != nil {
		m.logger.Error("release failed", "position_id", pos.PositionID, "error", releaseErr)
	}
	if pos.Strategy == domain.StrategyLagArb && m.cfg.LagCooldown > 0 {
		_ = m.ledger.SetCooldown(pos.PoolID, now.Add(m.cfg.LagCooldown))
	}

	outcome := "closed"
	if reason == domain.ExitForcedUnwind {
		outcome = "unwound"
	}
	m.record(ctx, *pos, outcome, now)

	m.logger.Info("position closed",
		"position_id", pos.PositionID,
		"pool_id", pos.PoolID,
		"reason", reason,
		"pnl", pnl,
		"held", pos.HeldFor(now).String())
	m.publish(ctx, outcome, *pos)
}

// failEntry records a rejected or timed out entry. No reservation was made,
// so there is nothing to release. The engine may retry once within the same
// tick, with a freshly evaluated signal only.
func (m *Manager) failEntry(ctx context.Context, pos *domain.Position, now time.Time, cause error) {
	reason := domain.ExitEntryFailed
	pos.State = domain.PositionClosed
	pos.ExitReason = &reason
	closedAt := now
	pos.ClosedAt = &closedAt

	degraded, _ := m.ledger.RecordFailure(pos.PoolID, now)
	if degraded {
		m.logger.Warn("pool suspended after repeated entry failures", "pool_id", pos.PoolID)
	}
	m.record(ctx, *pos, "entry_failed", now)
	m.logger.Warn("entry failed",
		"position_id", pos.PositionID,
		"pool_id", pos.PoolID,
		"instrument", pos.InstrumentID,
		"error", cause)
	m.publish(ctx, "entry_failed", *pos)
}

// flattenUnreserved handles a fill whose cost the ledger refused to back:
// sell it straight back and journal the episode without ever reserving.
func (m *Manager) flattenUnreserved(ctx context.Context, pos *domain.Position, fill domain.Fill, now time.Time) {
	_, _, err := m.submit(ctx, domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		InstrumentID:  pos.InstrumentID,
		Direction:     domain.DirectionSell,
		Size:          fill.FillSize,
		PriceLimit:    0,
		Mode:          m.cfg.Mode,
	})
	if err != nil {
		m.logger.Error("unreserved flatten failed", "position_id", pos.PositionID, "error", err)
	}
	reason := domain.ExitForcedUnwind
	pos.State = domain.PositionClosed
	pos.ExitReason = &reason
	closedAt := now
	pos.ClosedAt = &closedAt
	m.record(ctx, *pos, "unwound", now)
}

// submit runs one execution-port call under the configured timeout. A timed
// out order is cancelled by client reference; a cancel that raced a fill
// reports the fill with late=true so the caller can unwind it.
func (m *Manager) submit(ctx context.Context, req domain.OrderRequest) (fill domain.Fill, late bool, err error) {
	callCtx := ctx
	if m.cfg.ExecTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.cfg.ExecTimeout)
		defer cancel()
	}

	fill, err = m.exec.SubmitOrder(callCtx, req)
	if err == nil {
		return fill, false, nil
	}
	if !errors.Is(err, context.DeadlineExceeded) || req.ClientOrderID == "" {
		return domain.Fill{}, false, fmt.Errorf("submit %s %s: %w",
			req.Direction, req.InstrumentID, err)
	}

	// The order may still be live at the venue. Cancel it; a fill that beat
	// the cancel is live exposure, not an error.
	outcome, raced, cerr := m.exec.CancelOrder(ctx, req.ClientOrderID)
	if cerr == nil && outcome == domain.CancelAlreadyFilled && raced != nil {
		return *raced, true, nil
	}
	return domain.Fill{}, false, fmt.Errorf("submit %s %s: timed out: %w",
		req.Direction, req.InstrumentID, domain.ErrExecutionRejected)
}

// setState transitions a tracked position. Tracked positions are shared
// with readers that hold m.mu, so every field write goes through the lock.
func (m *Manager) setState(pos *domain.Position, state domain.PositionState) {
	m.mu.Lock()
	pos.State = state
	m.mu.Unlock()
}

func (m *Manager) touch(pos *domain.Position, now time.Time) {
	m.mu.Lock()
	pos.LastEvaluatedAt = now
	m.mu.Unlock()
}

// poolPositions returns the pool's non-terminal positions ordered by open
// time, oldest first.
func (m *Manager) poolPositions(poolID string) []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Position, 0, 4)
	for _, p := range m.open {
		if p.PoolID == poolID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// OpenPositions returns copies of the pool's non-terminal positions.
func (m *Manager) OpenPositions(poolID string) []domain.Position {
	ptrs := m.poolPositions(poolID)
	out := make([]domain.Position, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// HasOpen reports whether the pool still backs any non-terminal position.
func (m *Manager) HasOpen(poolID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.open {
		if p.PoolID == poolID {
			return true
		}
	}
	return false
}

// OpenCommitted sums committed size per pool over non-terminal positions,
// in the shape the ledger's invariant check consumes.
func (m *Manager) OpenCommitted() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCommittedLocked()
}

func (m *Manager) openCommittedLocked() map[string]float64 {
	out := make(map[string]float64, 8)
	for _, p := range m.open {
		out[p.PoolID] += p.CommittedSize
	}
	return out
}

// VerifyReservations checks the reserved == open committed invariant against
// a snapshot taken under the same lock that guards every reservation commit
// and release, so the check can never observe a half-applied entry or exit.
func (m *Manager) VerifyReservations() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.CheckInvariant(m.openCommittedLocked())
}

func (m *Manager) record(ctx context.Context, pos domain.Position, outcome string, now time.Time) {
	entry := domain.JournalEntry{
		EntryID:    uuid.NewString(),
		PoolID:     pos.PoolID,
		Strategy:   pos.Strategy,
		Position:   pos,
		Outcome:    outcome,
		RecordedAt: now,
	}
	if err := m.journal.Record(ctx, entry); err != nil {
		m.logger.Error("journal write failed", "position_id", pos.PositionID, "error", err)
	}
}

type lifecycleEvent struct {
	Type         string    `json:"type"`
	PositionID   string    `json:"position_id"`
	PoolID       string    `json:"pool_id"`
	Strategy     string    `json:"strategy"`
	InstrumentID string    `json:"instrument_id"`
	State        string    `json:"state"`
	PnL          *float64  `json:"pnl,omitempty"`
	At           time.Time `json:"at"`
}

func (m *Manager) publish(ctx context.Context, eventType string, pos domain.Position) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(lifecycleEvent{
		Type:         eventType,
		PositionID:   pos.PositionID,
		PoolID:       pos.PoolID,
		Strategy:     string(pos.Strategy),
		InstrumentID: pos.InstrumentID,
		State:        string(pos.State),
		PnL:          pos.RealizedPnL,
		At:           pos.LastEvaluatedAt,
	})
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, EventsChannel, payload); err != nil {
		m.logger.Debug("event publish failed", "error", err)
	}
}
