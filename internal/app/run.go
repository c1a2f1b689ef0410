package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rrijal1/poly-trader/internal/config"
	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/engine"
	"github.com/rrijal1/poly-trader/internal/feed"
	"github.com/rrijal1/poly-trader/internal/ledger"
	"github.com/rrijal1/poly-trader/internal/lifecycle"
	"github.com/rrijal1/poly-trader/internal/notify"
	"github.com/rrijal1/poly-trader/internal/rebalancer"
	"github.com/rrijal1/poly-trader/internal/scheduler"
)

// engineLockKey fences concurrent live replicas: only the holder may trade.
const engineLockKey = "engine.leader"

// run builds the trading core on top of the wired dependencies and starts
// every long-lived loop. It blocks until the context is cancelled or a loop
// fails.
func (a *App) run(ctx context.Context, deps *Dependencies, clock scheduler.Clock) error {
	if a.cfg.Mode == string(domain.ModeLive) && deps.LockManager != nil {
		// The lock has no expiry and is released on clean shutdown; a
		// crashed replica leaves it behind for the operator to clear.
		unlock, err := deps.LockManager.Acquire(ctx, engineLockKey, 0)
		if err != nil {
			return fmt.Errorf("app: acquire engine lock: %w", err)
		}
		defer unlock()
	}

	engineCfg, err := engineConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("app: engine config: %w", err)
	}

	led := ledger.New(ledger.Config{
		MinOrderSize:       a.cfg.Ledger.MinOrderSize,
		DegradeThreshold:   a.cfg.Ledger.DegradeThreshold,
		DegradedClearAfter: a.cfg.Ledger.DegradedClearAfter.Duration,
	}, a.logger)

	lm := lifecycle.New(lifecycle.Config{
		Mode:                 domain.ExecMode(a.cfg.Mode),
		ExecTimeout:          a.cfg.Lifecycle.ExecTimeout.Duration,
		ConvergenceTolerance: a.cfg.Lifecycle.ConvergenceTolerance,
		StalenessBound:       a.cfg.Lifecycle.StalenessBound.Duration,
		LagCooldown:          a.cfg.Lifecycle.LagCooldown.Duration,
	}, led, deps.Execution, deps.Journal, deps.EventBus, a.logger)

	sched := scheduler.New(clock, a.logger)
	eng := engine.New(engineCfg, clock, sched, led, lm, deps.MarketData, deps.Discovery, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	// Market-data feeds. The venue feed fills the quote cache the
	// strategies read; the reference feed anchors the lag detector.
	if a.cfg.Venue.WsHost != "" {
		instruments := watchedInstruments(a.cfg.Markets)
		if len(instruments) > 0 {
			vf := feed.NewVenueFeed(a.cfg.Venue.WsHost, instruments, deps.QuoteCache, a.logger)
			g.Go(func() error { return vf.Run(ctx) })
		}
	}
	if a.cfg.Reference.WsURL != "" && len(a.cfg.Reference.Sources) > 0 {
		rf := feed.NewReferenceFeed(a.cfg.Reference.WsURL, a.cfg.Reference.Sources, deps.QuoteCache, a.logger)
		g.Go(func() error { return rf.Run(ctx) })
	}

	g.Go(func() error { return eng.Run(ctx) })

	// Lifecycle events fan out to the notification channels via the bus.
	if deps.EventBus != nil {
		listener := notify.NewListener(deps.EventBus, deps.Notifier, a.logger)
		g.Go(func() error { return listener.Run(ctx) })
	}

	if deps.Archiver != nil && a.cfg.Archive.Interval.Duration > 0 {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps, clock, a.cfg.Archive.Interval.Duration)
		})
	}

	if deps.PoolStore != nil {
		interval := a.cfg.Rebalance.MaintenanceInterval.Duration
		if interval <= 0 {
			interval = time.Minute
		}
		g.Go(func() error {
			return a.mirrorPools(ctx, led, deps, clock, interval)
		})
	}

	if err := deps.Notifier.NotifyAll(ctx, "Trader started",
		fmt.Sprintf("mode %s, %d markets watched", a.cfg.Mode, len(a.cfg.Markets))); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}

	return g.Wait()
}

// archiveLoop periodically flushes new journal entries to object storage. A
// failed cycle is retried on the next interval; the archiver's watermark only
// advances after a successful upload.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies, clock scheduler.Clock, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(interval):
		}
		n, err := deps.Archiver.Archive(ctx, clock.Now())
		if err != nil {
			a.logger.WarnContext(ctx, "journal archive cycle failed", slog.String("error", err.Error()))
			continue
		}
		if n > 0 {
			a.logger.InfoContext(ctx, "journal entries archived", slog.Int("entries", n))
		}
	}
}

// mirrorPools upserts the ledger's pool snapshots into the durable store.
// Mirror failures are logged and never interrupt trading.
func (a *App) mirrorPools(ctx context.Context, led *ledger.Ledger, deps *Dependencies, clock scheduler.Clock, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(interval):
		}
		for _, pool := range led.Pools() {
			if err := deps.PoolStore.Upsert(ctx, pool); err != nil {
				a.logger.WarnContext(ctx, "pool mirror write failed",
					slog.String("pool_id", pool.PoolID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// watchedInstruments collects the outcome tokens of every configured market.
func watchedInstruments(markets []config.MarketConfig) []string {
	instruments := make([]string, 0, 2*len(markets))
	for _, m := range markets {
		instruments = append(instruments, m.YesInstrument, m.NoInstrument)
	}
	return instruments
}

// engineConfig maps the file configuration onto the engine's strategy
// surface, parsing market expiries up front so a malformed timestamp fails
// startup instead of a tick.
func engineConfig(cfg *config.Config) (engine.Config, error) {
	markets := make([]engine.MarketConfig, 0, len(cfg.Markets))
	for _, m := range cfg.Markets {
		expiry, err := m.Expiry()
		if err != nil {
			return engine.Config{}, fmt.Errorf("market %s: parse expires_at: %w", m.Name, err)
		}
		markets = append(markets, engine.MarketConfig{
			Name:             m.Name,
			YesInstrument:    m.YesInstrument,
			NoInstrument:     m.NoInstrument,
			ReferenceSource:  m.ReferenceSource,
			VolatilitySource: m.VolatilitySource,
			BandLow:          m.BandLow,
			BandHigh:         m.BandHigh,
			ExpiresAt:        expiry,
		})
	}

	return engine.Config{
		Mode:    domain.ExecMode(cfg.Mode),
		Markets: markets,
		Arbitrage: engine.ArbitrageConfig{
			Enabled:             cfg.Arbitrage.Enabled,
			PoolBalance:         cfg.Arbitrage.PoolBalance,
			MaxPositionFraction: cfg.Arbitrage.MaxPositionFraction,
			TickInterval:        cfg.Arbitrage.TickInterval.Duration,
			Threshold:           cfg.Arbitrage.Threshold,
			MaxSize:             cfg.Arbitrage.MaxSize,
			StalenessBound:      cfg.Arbitrage.StalenessBound.Duration,
		},
		Breakout: engine.BreakoutConfig{
			Enabled:             cfg.Breakout.Enabled,
			PoolBalance:         cfg.Breakout.PoolBalance,
			MaxPositionFraction: cfg.Breakout.MaxPositionFraction,
			TickInterval:        cfg.Breakout.TickInterval.Duration,
			EdgeThreshold:       cfg.Breakout.EdgeThreshold,
			FeeRate:             cfg.Breakout.FeeRate,
			Volatility:          cfg.Breakout.Volatility,
			MaxSize:             cfg.Breakout.MaxSize,
			StalenessBound:      cfg.Breakout.StalenessBound.Duration,
			TakeProfitPct:       cfg.Breakout.TakeProfitPct,
			StopLossPct:         cfg.Breakout.StopLossPct,
		},
		Lag: engine.LagConfig{
			Enabled:             cfg.Lag.Enabled,
			PoolBalance:         cfg.Lag.PoolBalance,
			MaxPositionFraction: cfg.Lag.MaxPositionFraction,
			TickInterval:        cfg.Lag.TickInterval.Duration,
			MoveThreshold:       cfg.Lag.MoveThreshold,
			MaxSize:             cfg.Lag.MaxSize,
			MaxHold:             cfg.Lag.MaxHold.Duration,
			StalenessBound:      cfg.Lag.StalenessBound.Duration,
		},
		Copy:                mirrorConfig(cfg.Copy),
		Counter:             mirrorConfig(cfg.Counter),
		RebalanceInterval:   cfg.Rebalance.Interval.Duration,
		MaintenanceInterval: cfg.Rebalance.MaintenanceInterval.Duration,
	}, nil
}

func mirrorConfig(mc config.MirrorConfig) engine.MirrorConfig {
	return engine.MirrorConfig{
		Enabled:        mc.Enabled,
		TickInterval:   mc.TickInterval.Duration,
		MaxTradeAge:    mc.MaxTradeAge.Duration,
		StalenessBound: mc.StalenessBound.Duration,
		Confidence:     mc.Confidence,
		Rebalance: rebalancer.Config{
			TotalBudget:             mc.TotalBudget,
			MinPoolSize:             mc.MinPoolSize,
			MaxEntityFraction:       mc.MaxEntityFraction,
			MinTrades:               mc.MinTrades,
			MinWinRate:              mc.MinWinRate,
			MaxPositionFraction:     mc.MaxPositionFraction,
			MaxCounterpartyFraction: mc.MaxCounterpartyFraction,
		},
	}
}
