// Package engine wires the tick pipeline together: estimators read the
// market snapshots, the ledger clamps their signals into sized orders, and
// the lifecycle manager turns those into positions. One scheduler loop per
// pool keeps every pool's pipeline strictly sequential while pools run
// concurrently with each other.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/ledger"
	"github.com/rrijal1/poly-trader/internal/lifecycle"
	"github.com/rrijal1/poly-trader/internal/rebalancer"
	"github.com/rrijal1/poly-trader/internal/scheduler"
)

// MarketConfig describes one binary market the engine watches. YesInstrument
// pays out when the event resolves inside (or true); NoInstrument is its
// complement.
type MarketConfig struct {
	Name             string
	YesInstrument    string
	NoInstrument     string
	ReferenceSource  string
	VolatilitySource string
	BandLow          float64
	BandHigh         float64
	ExpiresAt        time.Time
}

// ArbitrageConfig runs the Dutch-book sum detector over every market.
type ArbitrageConfig struct {
	Enabled             bool
	PoolBalance         float64
	MaxPositionFraction float64
	TickInterval        time.Duration
	Threshold           float64
	MaxSize             float64
	StalenessBound      time.Duration
}

// BreakoutConfig runs the lognormal band estimator over markets that carry a
// band and an expiry.
type BreakoutConfig struct {
	Enabled             bool
	PoolBalance         float64
	MaxPositionFraction float64
	TickInterval        time.Duration
	EdgeThreshold       float64
	FeeRate             float64
	// Volatility is the fixed fallback sigma, used when the market has no
	// volatility source or the source is unavailable.
	Volatility     float64
	MaxSize        float64
	StalenessBound time.Duration
	TakeProfitPct  float64
	StopLossPct    float64
}

// LagConfig runs the stale-quote detector over markets with a reference feed.
type LagConfig struct {
	Enabled             bool
	PoolBalance         float64
	MaxPositionFraction float64
	TickInterval        time.Duration
	MoveThreshold       float64
	MaxSize             float64
	MaxHold             time.Duration
	StalenessBound      time.Duration
}

// MirrorConfig drives one copy or counter strategy family: its pools are
// created and drained by the rebalancer, one per tracked entity.
type MirrorConfig struct {
	Enabled        bool
	TickInterval   time.Duration
	MaxTradeAge    time.Duration
	StalenessBound time.Duration
	// Confidence is the base confidence applied to mirrored trades.
	Confidence float64
	Rebalance  rebalancer.Config
}

// Config assembles the engine's full strategy surface.
type Config struct {
	Mode                domain.ExecMode
	Markets             []MarketConfig
	Arbitrage           ArbitrageConfig
	Breakout            BreakoutConfig
	Lag                 LagConfig
	Copy                MirrorConfig
	Counter             MirrorConfig
	RebalanceInterval   time.Duration
	MaintenanceInterval time.Duration
}

// Engine owns the strategy pools and their scheduler loops.
type Engine struct {
	cfg       Config
	clock     scheduler.Clock
	sched     *scheduler.Scheduler
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Manager
	md        domain.MarketData
	discovery domain.Discovery
	logger    *slog.Logger

	copyReb    *rebalancer.Rebalancer
	counterReb *rebalancer.Rebalancer

	mu sync.Mutex
	// anchors tracks, per market, the reference value at the instant the
	// venue book last repriced. The lag detector measures moves against it.
	anchors map[string]anchorState
	// lastSeenTrade is the high-water mark for each mirror pool's observed
	// trade feed.
	lastSeenTrade map[string]time.Time
}

type anchorState struct {
	value   float64
	quoteAt time.Time
}

// New assembles the engine. discovery may be nil when neither mirror
// strategy is enabled.
func New(cfg Config, clock scheduler.Clock, sched *scheduler.Scheduler, led *ledger.Ledger, lm *lifecycle.Manager, md domain.MarketData, discovery domain.Discovery, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:           cfg,
		clock:         clock,
		sched:         sched,
		ledger:        led,
		lifecycle:     lm,
		md:            md,
		discovery:     discovery,
		logger:        logger.With("component", "engine"),
		copyReb:       rebalancer.New(cfg.Copy.Rebalance, logger),
		counterReb:    rebalancer.New(cfg.Counter.Rebalance, logger),
		anchors:       make(map[string]anchorState),
		lastSeenTrade: make(map[string]time.Time),
	}
}

// Run bootstraps the static strategy pools, starts every loop, and blocks
// until ctx is cancelled. On return all loops have drained their in-flight
// ticks.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	if e.cfg.Copy.Enabled || e.cfg.Counter.Enabled {
		e.sched.StartLoop(ctx, "rebalance", e.cfg.RebalanceInterval, e.rebalanceTick)
	}
	if e.cfg.MaintenanceInterval > 0 {
		e.sched.StartLoop(ctx, "maintenance", e.cfg.MaintenanceInterval, e.maintenanceTick)
	}

	e.logger.Info("engine running",
		"mode", e.cfg.Mode,
		"markets", len(e.cfg.Markets),
		"pools", len(e.ledger.Pools()))

	<-ctx.Done()
	e.sched.Shutdown()
	return ctx.Err()
}

// bootstrap creates the configured static strategy pools and their loops.
// Mirror pools are not static; the first rebalance cycle creates them.
func (e *Engine) bootstrap(ctx context.Context) error {
	type static struct {
		kind     domain.StrategyKind
		enabled  bool
		balance  float64
		fraction float64
		interval time.Duration
		tick     scheduler.TickFunc
	}

	for _, s := range []static{
		{domain.StrategyArbitrage, e.cfg.Arbitrage.Enabled, e.cfg.Arbitrage.PoolBalance,
			e.cfg.Arbitrage.MaxPositionFraction, e.cfg.Arbitrage.TickInterval, nil},
		{domain.StrategyBreakout, e.cfg.Breakout.Enabled, e.cfg.Breakout.PoolBalance,
			e.cfg.Breakout.MaxPositionFraction, e.cfg.Breakout.TickInterval, nil},
		{domain.StrategyLagArb, e.cfg.Lag.Enabled, e.cfg.Lag.PoolBalance,
			e.cfg.Lag.MaxPositionFraction, e.cfg.Lag.TickInterval, nil},
	} {
		if !s.enabled {
			continue
		}
		poolID := string(s.kind) + ":main"
		err := e.ledger.CreatePool(domain.CapitalPool{
			PoolID:              poolID,
			OwnerRef:            "strategy:" + string(s.kind),
			Strategy:            s.kind,
			Balance:             s.balance,
			MaxPositionFraction: s.fraction,
			Status:              domain.PoolStatusActive,
			CreatedAt:           e.clock.Now(),
		})
		if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
		e.sched.StartLoop(ctx, poolID, s.interval, e.strategyTick(poolID, s.kind))
	}
	return nil
}

func (e *Engine) strategyTick(poolID string, kind domain.StrategyKind) scheduler.TickFunc {
	return func(ctx context.Context, now time.Time) error {
		// Exits first: capital freed this tick is available for entries.
		e.lifecycle.EvaluateExits(ctx, poolID, e.md, now)

		switch kind {
		case domain.StrategyArbitrage:
			return e.arbitrageTick(ctx, poolID, now)
		case domain.StrategyBreakout:
			return e.breakoutTick(ctx, poolID, now)
		case domain.StrategyLagArb:
			return e.lagTick(ctx, poolID, now)
		}
		return nil
	}
}

// maintenanceTick revives quiet degraded pools and verifies the reservation
// invariant against the lifecycle manager's open set. The manager takes the
// snapshot, so the check is atomic with respect to entries and exits.
func (e *Engine) maintenanceTick(_ context.Context, now time.Time) error {
	e.ledger.ReviveDegraded(now)
	if err := e.lifecycle.VerifyReservations(); err != nil {
		e.logger.Error("reservation invariant violated", "error", err)
		return err
	}
	return nil
}

// enter sizes and opens a position from a freshly evaluated signal. evaluate
// must produce the signal from current data, because a rejected placement is
// retried exactly once within the tick, and only ever with a re-evaluated
// signal, never the stale one.
func (e *Engine) enter(ctx context.Context, poolID string, evaluate func() domain.Signal, now time.Time) {
	for attempt := 0; attempt < 2; attempt++ {
		sig := evaluate()
		if !sig.Actionable() {
			return
		}

		size, err := e.ledger.SizeOrder(poolID, sig, now)
		if err != nil {
			e.logger.Debug("signal not sized",
				"pool_id", poolID, "strategy", sig.StrategyID, "error", err)
			return
		}

		pool, err := e.ledger.Pool(poolID)
		if err != nil {
			return
		}

		_, err = e.lifecycle.OpenFromSignal(ctx, pool, sig, size, now)
		if err == nil || !errors.Is(err, domain.ErrExecutionRejected) {
			return
		}
		e.logger.Warn("entry rejected, retrying with fresh signal",
			"pool_id", poolID, "strategy", sig.StrategyID, "attempt", attempt+1)
	}
}
