package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/ledger"
	"github.com/rrijal1/poly-trader/internal/lifecycle"
	"github.com/rrijal1/poly-trader/internal/rebalancer"
	"github.com/rrijal1/poly-trader/internal/scheduler"
)

type mapData struct {
	mu     sync.Mutex
	quotes map[string]domain.MarketQuote
	refs   map[string]domain.ReferenceObservation
}

func (d *mapData) GetQuote(_ context.Context, id string) (domain.MarketQuote, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.quotes[id]
	if !ok {
		return domain.MarketQuote{}, domain.ErrUnavailable
	}
	return q, nil
}

func (d *mapData) GetReference(_ context.Context, id string) (domain.ReferenceObservation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.refs[id]
	if !ok {
		return domain.ReferenceObservation{}, domain.ErrUnavailable
	}
	return r, nil
}

func (d *mapData) setQuote(q domain.MarketQuote) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quotes[q.InstrumentID] = q
}

func (d *mapData) setReference(r domain.ReferenceObservation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs[r.SourceID] = r
}

type fillExec struct{}

func (fillExec) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.Fill, error) {
	price := req.PriceLimit
	if price == 0 {
		price = 0.5
	}
	return domain.Fill{
		OrderRef:  req.ClientOrderID,
		FillPrice: price,
		FillSize:  req.Size,
		FilledAt:  time.Now().UTC(),
	}, nil
}

func (fillExec) CancelOrder(_ context.Context, _ string) (domain.CancelOutcome, *domain.Fill, error) {
	return domain.CancelOK, nil, nil
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, domain.JournalEntry) error { return nil }
func (nopJournal) ListRecent(context.Context, int) ([]domain.JournalEntry, error) {
	return nil, nil
}
func (nopJournal) ListSince(context.Context, time.Time) ([]domain.JournalEntry, error) {
	return nil, nil
}

type fakeDiscovery struct {
	mu       sync.Mutex
	snapshot domain.CandidateSnapshot
	trades   map[string][]domain.ObservedTrade
}

func (d *fakeDiscovery) ListCandidates(_ context.Context, kind domain.StrategyKind) (domain.CandidateSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.snapshot
	snap.Strategy = kind
	return snap, nil
}

func (d *fakeDiscovery) RecentTrades(_ context.Context, entityID string, since time.Time) ([]domain.ObservedTrade, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.ObservedTrade
	for _, tr := range d.trades[entityID] {
		if tr.ObservedAt.After(since) {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (d *fakeDiscovery) setSnapshot(snap domain.CandidateSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = snap
}

type harness struct {
	engine    *Engine
	clock     *scheduler.VirtualClock
	sched     *scheduler.Scheduler
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Manager
	md        *mapData
	discovery *fakeDiscovery
	cancel    context.CancelFunc
	done      chan struct{}
}

func newHarness(t *testing.T, cfg Config, start time.Time) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := scheduler.NewVirtualClock(start)
	sched := scheduler.New(clock, logger)
	led := ledger.New(ledger.Config{MinOrderSize: 1, DegradeThreshold: 3}, logger)
	md := &mapData{
		quotes: make(map[string]domain.MarketQuote),
		refs:   make(map[string]domain.ReferenceObservation),
	}
	lm := lifecycle.New(lifecycle.Config{
		Mode:                 cfg.Mode,
		ConvergenceTolerance: 0.01,
		StalenessBound:       time.Minute,
	}, led, fillExec{}, nopJournal{}, nil, logger)
	disc := &fakeDiscovery{trades: make(map[string][]domain.ObservedTrade)}

	h := &harness{
		engine:    New(cfg, clock, sched, led, lm, md, disc, logger),
		clock:     clock,
		sched:     sched,
		ledger:    led,
		lifecycle: lm,
		md:        md,
		discovery: disc,
		done:      make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		_ = h.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not shut down")
		}
	})
	return h
}

func btcMarket() MarketConfig {
	return MarketConfig{
		Name:            "btc-90-92",
		YesInstrument:   "yes-token",
		NoInstrument:    "no-token",
		ReferenceSource: "binance:BTCUSDT",
	}
}

func TestArbitragePipeline_OpensPairedPosition(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{
		Mode:    domain.ModeDryRun,
		Markets: []MarketConfig{btcMarket()},
		Arbitrage: ArbitrageConfig{
			Enabled:             true,
			PoolBalance:         1000,
			MaxPositionFraction: 0.2,
			TickInterval:        time.Second,
			Threshold:           0.01,
			MaxSize:             100,
			StalenessBound:      time.Minute,
		},
	}
	h := newHarness(t, cfg, t0)

	h.md.setQuote(domain.MarketQuote{
		InstrumentID: "yes-token", BestBid: 0.44, BestAsk: 0.45,
		BestAskSize: 1000, ObservedAt: t0,
	})
	h.md.setQuote(domain.MarketQuote{
		InstrumentID: "no-token", BestBid: 0.51, BestAsk: 0.52,
		BestAskSize: 1000, ObservedAt: t0,
	})

	h.clock.AwaitWaiters(1)
	h.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return len(h.lifecycle.OpenPositions("price_arbitrage:main")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	pos := h.lifecycle.OpenPositions("price_arbitrage:main")[0]
	assert.Equal(t, domain.DirectionBuyBoth, pos.Direction)
	assert.Equal(t, "yes-token", pos.InstrumentID)
	assert.Equal(t, "no-token", pos.PairedInstrumentID)
	assert.InDelta(t, 0.97, pos.EntryPrice+pos.PairedEntryPrice, 1e-9)

	assert.NoError(t, h.ledger.CheckInvariant(h.lifecycle.OpenCommitted()))
}

func TestLagPipeline_AnchorsThenFiresOnMove(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{
		Mode:    domain.ModeDryRun,
		Markets: []MarketConfig{btcMarket()},
		Lag: LagConfig{
			Enabled:             true,
			PoolBalance:         1000,
			MaxPositionFraction: 0.2,
			TickInterval:        time.Second,
			MoveThreshold:       0.001,
			MaxSize:             25,
			MaxHold:             30 * time.Second,
			StalenessBound:      time.Minute,
		},
	}
	h := newHarness(t, cfg, t0)

	h.md.setQuote(domain.MarketQuote{
		InstrumentID: "yes-token", BestBid: 0.48, BestAsk: 0.50,
		BestAskSize: 100, ObservedAt: t0,
	})
	h.md.setQuote(domain.MarketQuote{
		InstrumentID: "no-token", BestBid: 0.48, BestAsk: 0.50,
		BestAskSize: 100, ObservedAt: t0,
	})
	h.md.setReference(domain.ReferenceObservation{
		SourceID: "binance:BTCUSDT", Value: 100000, ObservedAt: t0,
	})

	// First tick only anchors the reference against the resting book.
	h.clock.AwaitWaiters(1)
	h.clock.Advance(time.Second)
	h.clock.AwaitWaiters(1)
	assert.Empty(t, h.lifecycle.OpenPositions("lag_arb:main"))

	// Reference jumps 0.3% while the book sits still: the stale ask is cheap.
	h.md.setReference(domain.ReferenceObservation{
		SourceID: "binance:BTCUSDT", Value: 100300, ObservedAt: t0.Add(2 * time.Second),
	})
	h.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return len(h.lifecycle.OpenPositions("lag_arb:main")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	pos := h.lifecycle.OpenPositions("lag_arb:main")[0]
	assert.Equal(t, domain.DirectionBuyYes, pos.Direction)
	assert.Equal(t, 30*time.Second, pos.MaxHold)
	assert.InDelta(t, 0.50, pos.EntryPrice, 1e-9)
}

func copyConfig() MirrorConfig {
	return MirrorConfig{
		Enabled:        true,
		TickInterval:   time.Second,
		MaxTradeAge:    24 * time.Hour,
		StalenessBound: time.Minute,
		Confidence:     0.7,
		Rebalance: rebalancer.Config{
			TotalBudget:             1000,
			MinPoolSize:             50,
			MaxEntityFraction:       1,
			MinTrades:               10,
			MinWinRate:              0.5,
			MaxPositionFraction:     0.1,
			MaxCounterpartyFraction: 0.01,
		},
	}
}

func qualifiedSnapshot(entityID string) domain.CandidateSnapshot {
	return domain.CandidateSnapshot{
		Version: 1,
		Candidates: []domain.Candidate{{
			EntityID: entityID,
			Metrics: domain.EntityMetrics{
				PnL7d: 100, PnL30d: 400, PnLAllTime: 2000,
				WinRate: 0.6, TotalTrades: 80,
				Bankroll: 100000, ConsistencyScore: 0.8,
			},
		}},
	}
}

func TestRebalanceCreatesCopyPoolThatMirrorsTrades(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{
		Mode:              domain.ModeDryRun,
		Copy:              copyConfig(),
		RebalanceInterval: time.Hour,
	}
	h := newHarness(t, cfg, t0)

	h.discovery.setSnapshot(qualifiedSnapshot("0xwhale"))

	// First rebalance cycle creates the pool and its loop.
	h.clock.AwaitWaiters(1)
	h.clock.Advance(time.Hour)

	poolID := rebalancer.PoolID(domain.StrategyCopy, "0xwhale")
	require.Eventually(t, func() bool {
		_, err := h.ledger.Pool(poolID)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	pool, err := h.ledger.Pool(poolID)
	require.NoError(t, err)
	assert.InDelta(t, 1000, pool.Balance, 1e-9)
	assert.InDelta(t, 100000, pool.CounterpartyBankroll, 1e-9)

	// The tracked entity trades; the next pool tick copies it.
	tradeAt := t0.Add(time.Hour)
	h.md.setQuote(domain.MarketQuote{
		InstrumentID: "event-token", BestBid: 0.59, BestAsk: 0.61,
		BestAskSize: 5000, ObservedAt: tradeAt,
	})
	h.discovery.mu.Lock()
	h.discovery.trades["0xwhale"] = []domain.ObservedTrade{{
		EntityID:     "0xwhale",
		InstrumentID: "event-token",
		Direction:    domain.DirectionBuyYes,
		Size:         2000,
		Price:        0.60,
		ObservedAt:   tradeAt,
	}}
	h.discovery.mu.Unlock()

	h.clock.AwaitWaiters(2)
	h.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return len(h.lifecycle.OpenPositions(poolID)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	pos := h.lifecycle.OpenPositions(poolID)[0]
	assert.Equal(t, domain.DirectionBuyYes, pos.Direction)
	assert.Equal(t, "event-token", pos.InstrumentID)
	// 2000 x 0.60 x (1000/100000) = 12 notional, scaled by 0.7 confidence.
	assert.InDelta(t, 8.4, pos.CommittedSize, 1e-9)
}

func TestDisqualifiedEntityPoolIsDrainedAndSwept(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{
		Mode:              domain.ModeDryRun,
		Copy:              copyConfig(),
		RebalanceInterval: time.Hour,
	}
	h := newHarness(t, cfg, t0)

	h.discovery.setSnapshot(qualifiedSnapshot("0xwhale"))
	h.clock.AwaitWaiters(1)
	h.clock.Advance(time.Hour)

	poolID := rebalancer.PoolID(domain.StrategyCopy, "0xwhale")
	require.Eventually(t, func() bool {
		return h.sched.Running(poolID)
	}, 2*time.Second, 5*time.Millisecond)

	// The entity loses its 7d positive-PnL status; next cycle drains the
	// pool, and with nothing open it is removed in the same sweep.
	lost := qualifiedSnapshot("0xwhale")
	lost.Version = 2
	lost.Candidates[0].Metrics.PnL7d = -50
	h.discovery.setSnapshot(lost)

	h.clock.AwaitWaiters(2)
	h.clock.Advance(time.Hour)

	require.Eventually(t, func() bool {
		_, err := h.ledger.Pool(poolID)
		return err != nil && !h.sched.Running(poolID)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExpiredMarketSettlesPairsAtResolution(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := btcMarket()
	m.ExpiresAt = t0.Add(30 * time.Minute)
	cfg := Config{
		Mode:    domain.ModeDryRun,
		Markets: []MarketConfig{m},
		Arbitrage: ArbitrageConfig{
			Enabled:             true,
			PoolBalance:         1000,
			MaxPositionFraction: 0.2,
			TickInterval:        time.Second,
			Threshold:           0.01,
			MaxSize:             100,
			StalenessBound:      time.Minute,
		},
	}
	h := newHarness(t, cfg, t0)

	h.md.setQuote(domain.MarketQuote{
		InstrumentID: "yes-token", BestBid: 0.44, BestAsk: 0.45,
		BestAskSize: 1000, ObservedAt: t0,
	})
	h.md.setQuote(domain.MarketQuote{
		InstrumentID: "no-token", BestBid: 0.51, BestAsk: 0.52,
		BestAskSize: 1000, ObservedAt: t0,
	})

	h.clock.AwaitWaiters(1)
	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return len(h.lifecycle.OpenPositions("price_arbitrage:main")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Past expiry the tick redeems the pair instead of holding it forever.
	h.clock.AwaitWaiters(1)
	h.clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		return len(h.lifecycle.OpenPositions("price_arbitrage:main")) == 0
	}, 2*time.Second, 5*time.Millisecond)

	p, err := h.ledger.Pool("price_arbitrage:main")
	require.NoError(t, err)
	assert.Zero(t, p.Reserved)
	// A full pair redeems above its sub-parity cost.
	assert.Greater(t, p.Balance, 1000.0)
	assert.NoError(t, h.lifecycle.VerifyReservations())
}

func TestRebalanceWithoutDiscoveryReturnsError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := scheduler.NewVirtualClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	sched := scheduler.New(clock, logger)
	defer sched.Shutdown()
	led := ledger.New(ledger.Config{MinOrderSize: 1, DegradeThreshold: 3}, logger)
	lm := lifecycle.New(lifecycle.Config{Mode: domain.ModeDryRun}, led, fillExec{}, nopJournal{}, nil, logger)

	cfg := Config{Mode: domain.ModeDryRun, Copy: copyConfig()}
	e := New(cfg, clock, sched, led, lm, nil, nil, logger)

	err := e.rebalanceKind(context.Background(), domain.StrategyCopy, e.copyReb, e.cfg.Copy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no discovery client")

	// The full cycle absorbs the error instead of panicking the loop.
	require.NoError(t, e.rebalanceTick(context.Background(), clock.Now()))
}
