package estimator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrijal1/poly-trader/internal/domain"
)

func lagInputs(now time.Time, refValue, anchor float64) Inputs {
	quoteTime := now.Add(-2 * time.Second) // book last repriced before the move
	return Inputs{
		YesQuote: domain.MarketQuote{
			InstrumentID: "up-token",
			BestBid:      0.48,
			BestAsk:      0.50,
			BestAskSize:  100,
			ObservedAt:   quoteTime,
		},
		NoQuote: domain.MarketQuote{
			InstrumentID: "down-token",
			BestBid:      0.48,
			BestAsk:      0.50,
			BestAskSize:  100,
			ObservedAt:   quoteTime,
		},
		Reference:       domain.ReferenceObservation{SourceID: "spot", Value: refValue, ObservedAt: now},
		ReferenceAnchor: anchor,
		Now:             now,
	}
}

func lagParams() LagParams {
	return LagParams{
		MoveThreshold:  0.001,
		MaxSize:        25,
		MaxHold:        30 * time.Second,
		StalenessBound: 5 * time.Second,
	}
}

func TestLag_UpMoveBuysUpTokenAtRestingAsk(t *testing.T) {
	now := time.Now().UTC()
	l := NewLag(lagParams())

	// +0.2% move against a stale book.
	sig := l.Evaluate(lagInputs(now, 100200, 100000))

	require.Equal(t, domain.DirectionBuyYes, sig.Direction)
	assert.Equal(t, "up-token", sig.InstrumentID)
	assert.Equal(t, 0.50, sig.LimitPrice)
	assert.Equal(t, 30*time.Second, sig.MaxHold)
	assert.InDelta(t, 0.002, sig.Edge, 1e-9)
}

func TestLag_DownMoveBuysDownToken(t *testing.T) {
	now := time.Now().UTC()
	l := NewLag(lagParams())

	sig := l.Evaluate(lagInputs(now, 99800, 100000))

	require.Equal(t, domain.DirectionBuyNo, sig.Direction)
	assert.Equal(t, "down-token", sig.InstrumentID)
}

func TestLag_SmallMoveSuppresses(t *testing.T) {
	now := time.Now().UTC()
	l := NewLag(lagParams())

	sig := l.Evaluate(lagInputs(now, 100050, 100000)) // +0.05% < 0.1%
	assert.Equal(t, domain.DirectionNone, sig.Direction)
}

func TestLag_RepricedBookSuppresses(t *testing.T) {
	now := time.Now().UTC()
	l := NewLag(lagParams())

	in := lagInputs(now, 100200, 100000)
	// Book updated after the reference observation: no longer stale.
	in.YesQuote.ObservedAt = now.Add(time.Millisecond)

	sig := l.Evaluate(in)
	assert.Equal(t, domain.DirectionNone, sig.Direction)
}

func TestLag_ClampsToTopOfBook(t *testing.T) {
	now := time.Now().UTC()
	l := NewLag(lagParams())

	in := lagInputs(now, 100200, 100000)
	in.YesQuote.BestAskSize = 10 // 10 x 0.50 = 5 USDC resting

	sig := l.Evaluate(in)
	require.Equal(t, domain.DirectionBuyYes, sig.Direction)
	assert.InDelta(t, 5.0, sig.RawSizeHint, 1e-9)
}

func TestLag_StaleReferenceSuppresses(t *testing.T) {
	now := time.Now().UTC()
	l := NewLag(lagParams())

	in := lagInputs(now, 100200, 100000)
	in.Reference.ObservedAt = now.Add(-6 * time.Second)

	sig := l.Evaluate(in)
	assert.Equal(t, domain.DirectionNone, sig.Direction)
}

func TestMirror_CopyKeepsSideCounterInverts(t *testing.T) {
	now := time.Now().UTC()
	trade := domain.ObservedTrade{
		EntityID:     "0xwhale",
		InstrumentID: "yes-token",
		Direction:    domain.DirectionBuyYes,
		Size:         2000,
		Price:        0.60,
		ObservedAt:   now.Add(-time.Minute),
	}
	quote := domain.MarketQuote{InstrumentID: "yes-token", BestBid: 0.59, BestAsk: 0.61, ObservedAt: now}

	base := MirrorParams{
		EntityID:       "0xwhale",
		PoolBalance:    100,
		EntityBankroll: 500000,
		Confidence:     0.8,
		MaxTradeAge:    24 * time.Hour,
		StalenessBound: time.Minute,
	}

	copyParams := base
	copyParams.Strategy = domain.StrategyCopy
	sig := NewMirror(copyParams).EvaluateTrade(trade, quote, now)
	require.Equal(t, domain.DirectionBuyYes, sig.Direction)
	// 2000 shares x $0.60 x (100/500000) = $0.24 proportional notional.
	assert.InDelta(t, 0.24, sig.RawSizeHint, 1e-9)

	counterParams := base
	counterParams.Strategy = domain.StrategyCounter
	sig = NewMirror(counterParams).EvaluateTrade(trade, quote, now)
	assert.Equal(t, domain.DirectionBuyNo, sig.Direction)
}

func TestMirror_OldTradeSuppresses(t *testing.T) {
	now := time.Now().UTC()
	trade := domain.ObservedTrade{
		EntityID:     "0xwhale",
		InstrumentID: "yes-token",
		Direction:    domain.DirectionBuyYes,
		Size:         100,
		Price:        0.50,
		ObservedAt:   now.Add(-25 * time.Hour),
	}
	quote := domain.MarketQuote{InstrumentID: "yes-token", BestAsk: 0.51, ObservedAt: now}

	m := NewMirror(MirrorParams{
		Strategy:       domain.StrategyCopy,
		EntityID:       "0xwhale",
		PoolBalance:    100,
		EntityBankroll: 10000,
		Confidence:     0.7,
		MaxTradeAge:    24 * time.Hour,
		StalenessBound: time.Minute,
	})

	sig := m.EvaluateTrade(trade, quote, now)
	assert.Equal(t, domain.DirectionNone, sig.Direction)
}
