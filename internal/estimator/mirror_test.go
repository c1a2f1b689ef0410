package estimator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrijal1/poly-trader/internal/domain"
)

func mirrorParams(kind domain.StrategyKind) MirrorParams {
	return MirrorParams{
		Strategy:       kind,
		EntityID:       "0xabc",
		PoolBalance:    500,
		EntityBankroll: 50_000,
		Confidence:     0.7,
		MaxTradeAge:    2 * time.Minute,
		StalenessBound: 10 * time.Second,
	}
}

func observedTrade(now time.Time) domain.ObservedTrade {
	return domain.ObservedTrade{
		EntityID:     "0xabc",
		InstrumentID: "tok-yes",
		Direction:    domain.DirectionBuyYes,
		Size:         1000,
		Price:        0.40,
		ObservedAt:   now.Add(-30 * time.Second),
	}
}

func mirrorQuote(now time.Time) domain.MarketQuote {
	return domain.MarketQuote{
		InstrumentID: "tok-yes",
		BestBid:      0.39,
		BestAsk:      0.41,
		BestAskSize:  2000,
		ObservedAt:   now.Add(-time.Second),
	}
}

func TestMirror_CopyKeepsSideAndSizesProportionally(t *testing.T) {
	now := time.Now().UTC()
	m := NewMirror(mirrorParams(domain.StrategyCopy))

	sig := m.EvaluateTrade(observedTrade(now), mirrorQuote(now), now)

	require.Equal(t, domain.DirectionBuyYes, sig.Direction)
	// 1000 shares at 0.40 scaled by 500/50000 bankroll ratio.
	assert.InDelta(t, 4.0, sig.RawSizeHint, 1e-9)
	assert.Equal(t, 0.41, sig.LimitPrice)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)
}

func TestMirror_CounterInvertsSide(t *testing.T) {
	now := time.Now().UTC()
	m := NewMirror(mirrorParams(domain.StrategyCounter))

	sig := m.EvaluateTrade(observedTrade(now), mirrorQuote(now), now)
	require.Equal(t, domain.DirectionBuyNo, sig.Direction)

	tr := observedTrade(now)
	tr.Direction = domain.DirectionBuyNo
	sig = m.EvaluateTrade(tr, mirrorQuote(now), now)
	require.Equal(t, domain.DirectionBuyYes, sig.Direction)
}

func TestMirror_CounterSkipsUninvertibleSide(t *testing.T) {
	now := time.Now().UTC()
	m := NewMirror(mirrorParams(domain.StrategyCounter))

	tr := observedTrade(now)
	tr.Direction = domain.DirectionSell
	sig := m.EvaluateTrade(tr, mirrorQuote(now), now)

	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.Contains(t, sig.Reason, "uninvertible")
}

func TestMirror_RejectsOldTradeStaleQuoteAndUnknownBankroll(t *testing.T) {
	now := time.Now().UTC()

	m := NewMirror(mirrorParams(domain.StrategyCopy))
	tr := observedTrade(now)
	tr.ObservedAt = now.Add(-5 * time.Minute)
	assert.Equal(t, domain.DirectionNone, m.EvaluateTrade(tr, mirrorQuote(now), now).Direction)

	q := mirrorQuote(now)
	q.ObservedAt = now.Add(-time.Minute)
	assert.Equal(t, domain.DirectionNone, m.EvaluateTrade(observedTrade(now), q, now).Direction)

	p := mirrorParams(domain.StrategyCopy)
	p.EntityBankroll = 0
	assert.Equal(t, domain.DirectionNone,
		NewMirror(p).EvaluateTrade(observedTrade(now), mirrorQuote(now), now).Direction)
}

func TestMirror_ConfidenceClamped(t *testing.T) {
	now := time.Now().UTC()
	p := mirrorParams(domain.StrategyCopy)
	p.Confidence = 1.4

	sig := NewMirror(p).EvaluateTrade(observedTrade(now), mirrorQuote(now), now)
	assert.Equal(t, 1.0, sig.Confidence)
}
