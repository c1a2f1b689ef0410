package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/estimator"
	"github.com/rrijal1/poly-trader/internal/rebalancer"
)

// gatherPair pulls both sides of a market's book plus its reference feed.
// Missing quotes surface as zero-valued snapshots, which every estimator
// treats as an empty book and fails closed on.
func (e *Engine) gatherPair(ctx context.Context, m MarketConfig, now time.Time) estimator.Inputs {
	in := estimator.Inputs{Now: now}
	if q, err := e.md.GetQuote(ctx, m.YesInstrument); err == nil {
		in.YesQuote = q
	}
	if q, err := e.md.GetQuote(ctx, m.NoInstrument); err == nil {
		in.NoQuote = q
	}
	if m.ReferenceSource != "" {
		if r, err := e.md.GetReference(ctx, m.ReferenceSource); err == nil {
			in.Reference = r
		}
	}
	in.ReferenceAnchor = e.trackAnchor(m.Name, in.YesQuote, in.Reference)
	return in
}

// trackAnchor maintains the reference value as of the venue book's last
// repricing. When a fresh quote arrives the anchor resets to the current
// reference; until then the lag detector measures the move against it.
func (e *Engine) trackAnchor(market string, quote domain.MarketQuote, ref domain.ReferenceObservation) float64 {
	if quote.ObservedAt.IsZero() || ref.Value <= 0 {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.anchors[market]
	if !ok || quote.ObservedAt.After(a.quoteAt) {
		a = anchorState{value: ref.Value, quoteAt: quote.ObservedAt}
		e.anchors[market] = a
	}
	return a.value
}

func (e *Engine) arbitrageTick(ctx context.Context, poolID string, now time.Time) error {
	cfg := e.cfg.Arbitrage
	est := estimator.NewArbitrage(estimator.ArbitrageParams{
		Threshold:      cfg.Threshold,
		MaxSize:        cfg.MaxSize,
		StalenessBound: cfg.StalenessBound,
	})

	for _, m := range e.cfg.Markets {
		if !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt) {
			// Pairs on an expired market redeem at resolution instead of
			// being sold; no new entries either.
			e.lifecycle.SettleResolved(ctx, poolID, m.YesInstrument, now)
			continue
		}
		m := m
		e.enter(ctx, poolID, func() domain.Signal {
			return est.Evaluate(e.gatherPair(ctx, m, now))
		}, now)
	}
	return nil
}

func (e *Engine) breakoutTick(ctx context.Context, poolID string, now time.Time) error {
	cfg := e.cfg.Breakout

	for _, m := range e.cfg.Markets {
		if m.BandLow <= 0 || m.BandHigh <= m.BandLow || m.ExpiresAt.IsZero() {
			continue
		}
		m := m
		est := estimator.NewBreakout(estimator.BreakoutParams{
			BandLow:        m.BandLow,
			BandHigh:       m.BandHigh,
			Expiry:         m.ExpiresAt,
			Volatility:     e.resolveVolatility(ctx, m),
			EdgeThreshold:  cfg.EdgeThreshold,
			FeeRate:        cfg.FeeRate,
			MaxSize:        cfg.MaxSize,
			StalenessBound: cfg.StalenessBound,
		})
		e.enter(ctx, poolID, func() domain.Signal {
			sig := est.Evaluate(e.gatherPair(ctx, m, now))
			if sig.Actionable() {
				sig.TakeProfitPct = cfg.TakeProfitPct
				sig.StopLossPct = cfg.StopLossPct
			}
			return sig
		}, now)
	}
	return nil
}

// resolveVolatility walks the market's volatility source chain: live feed
// first, configured fixed sigma as the last resort.
func (e *Engine) resolveVolatility(ctx context.Context, m MarketConfig) float64 {
	if m.VolatilitySource != "" {
		if r, err := e.md.GetReference(ctx, m.VolatilitySource); err == nil && r.Value > 0 {
			return r.Value
		}
		e.logger.Debug("volatility source unavailable, using fallback",
			"market", m.Name, "source", m.VolatilitySource)
	}
	return e.cfg.Breakout.Volatility
}

func (e *Engine) lagTick(ctx context.Context, poolID string, now time.Time) error {
	cfg := e.cfg.Lag
	est := estimator.NewLag(estimator.LagParams{
		MoveThreshold:  cfg.MoveThreshold,
		MaxSize:        cfg.MaxSize,
		MaxHold:        cfg.MaxHold,
		StalenessBound: cfg.StalenessBound,
	})

	for _, m := range e.cfg.Markets {
		if m.ReferenceSource == "" {
			continue
		}
		m := m
		e.enter(ctx, poolID, func() domain.Signal {
			return est.Evaluate(e.gatherPair(ctx, m, now))
		}, now)
	}
	return nil
}

// mirrorTick replays a tracked entity's trades since the pool's high-water
// mark through the copy/counter estimator.
func (e *Engine) mirrorTick(poolID string, cfg MirrorConfig) func(context.Context, time.Time) error {
	return func(ctx context.Context, now time.Time) error {
		e.lifecycle.EvaluateExits(ctx, poolID, e.md, now)

		pool, err := e.ledger.Pool(poolID)
		if err != nil {
			return err
		}
		if !pool.AcceptsEntries(now) {
			return nil
		}

		e.mu.Lock()
		since, ok := e.lastSeenTrade[poolID]
		e.mu.Unlock()
		if !ok {
			since = now.Add(-cfg.MaxTradeAge)
		}

		trades, err := e.discovery.RecentTrades(ctx, pool.OwnerRef, since)
		if err != nil {
			return err
		}

		highWater := since
		for _, trade := range trades {
			if trade.ObservedAt.After(highWater) {
				highWater = trade.ObservedAt
			}

			quote, err := e.md.GetQuote(ctx, trade.InstrumentID)
			if err != nil {
				continue
			}

			trade := trade
			est := estimator.NewMirror(estimator.MirrorParams{
				Strategy:       pool.Strategy,
				EntityID:       pool.OwnerRef,
				PoolBalance:    pool.Balance,
				EntityBankroll: pool.CounterpartyBankroll,
				Confidence:     cfg.Confidence,
				MaxTradeAge:    cfg.MaxTradeAge,
				StalenessBound: cfg.StalenessBound,
			})
			e.enter(ctx, poolID, func() domain.Signal {
				return est.EvaluateTrade(trade, quote, now)
			}, now)
		}

		e.mu.Lock()
		e.lastSeenTrade[poolID] = highWater
		e.mu.Unlock()
		return nil
	}
}

// rebalanceTick runs one discovery-and-reallocation cycle for each enabled
// mirror strategy, then sweeps fully drained pools out of the ledger.
func (e *Engine) rebalanceTick(ctx context.Context, now time.Time) error {
	if e.cfg.Copy.Enabled {
		if err := e.rebalanceKind(ctx, domain.StrategyCopy, e.copyReb, e.cfg.Copy); err != nil {
			e.logger.Warn("copy rebalance failed", "error", err)
		}
	}
	if e.cfg.Counter.Enabled {
		if err := e.rebalanceKind(ctx, domain.StrategyCounter, e.counterReb, e.cfg.Counter); err != nil {
			e.logger.Warn("counter rebalance failed", "error", err)
		}
	}
	e.sweepDrained(now)
	return nil
}

func (e *Engine) rebalanceKind(ctx context.Context, kind domain.StrategyKind, reb *rebalancer.Rebalancer, cfg MirrorConfig) error {
	if e.discovery == nil {
		return fmt.Errorf("%s: no discovery client configured", kind)
	}
	snapshot, err := e.discovery.ListCandidates(ctx, kind)
	if err != nil {
		return err
	}

	plan := reb.Rebalance(snapshot, e.ledger.Pools())
	if plan.Empty() {
		return nil
	}

	for _, pool := range plan.Create {
		pool.CreatedAt = e.clock.Now()
		if err := e.ledger.CreatePool(pool); err != nil {
			e.logger.Warn("pool create failed", "pool_id", pool.PoolID, "error", err)
			continue
		}
		e.sched.StartLoop(ctx, pool.PoolID, cfg.TickInterval, e.mirrorTick(pool.PoolID, cfg))
	}

	for _, poolID := range plan.Drain {
		if err := e.ledger.Drain(poolID); err != nil {
			e.logger.Warn("pool drain failed", "pool_id", poolID, "error", err)
		}
	}

	for poolID, target := range plan.Allocations {
		pool, err := e.ledger.Pool(poolID)
		if err != nil {
			continue
		}
		// The plan never sees open positions; never cut below reservation.
		if target < pool.Reserved {
			target = pool.Reserved
		}
		if err := e.ledger.SetBalance(poolID, target); err != nil {
			e.logger.Warn("pool retarget failed", "pool_id", poolID, "error", err)
		}
	}

	for poolID, bankroll := range plan.BankrollRefresh {
		if err := e.ledger.SetCounterpartyBankroll(poolID, bankroll); err != nil {
			e.logger.Warn("bankroll refresh failed", "pool_id", poolID, "error", err)
		}
	}
	return nil
}

// sweepDrained removes draining pools whose last position has closed and
// stops their loops.
func (e *Engine) sweepDrained(now time.Time) {
	for _, pool := range e.ledger.Pools() {
		if pool.Status != domain.PoolStatusDraining {
			continue
		}
		if e.lifecycle.HasOpen(pool.PoolID) {
			continue
		}
		e.sched.StopLoop(pool.PoolID)
		if err := e.ledger.Remove(pool.PoolID); err != nil {
			e.logger.Warn("drained pool removal failed", "pool_id", pool.PoolID, "error", err)
			continue
		}
		e.mu.Lock()
		delete(e.lastSeenTrade, pool.PoolID)
		e.mu.Unlock()
		e.logger.Info("drained pool removed", "pool_id", pool.PoolID, "owner", pool.OwnerRef, "at", now)
	}
}
