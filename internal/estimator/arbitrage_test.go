package estimator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrijal1/poly-trader/internal/domain"
)

func pairInputs(now time.Time, yesAsk, noAsk float64) Inputs {
	return Inputs{
		YesQuote: domain.MarketQuote{
			InstrumentID: "yes-token",
			BestBid:      yesAsk - 0.01,
			BestAsk:      yesAsk,
			BestAskSize:  1000,
			ObservedAt:   now,
		},
		NoQuote: domain.MarketQuote{
			InstrumentID: "no-token",
			BestBid:      noAsk - 0.01,
			BestAsk:      noAsk,
			BestAskSize:  1000,
			ObservedAt:   now,
		},
		Now: now,
	}
}

func TestArbitrage_DetectsDiscountedPair(t *testing.T) {
	now := time.Now().UTC()
	a := NewArbitrage(ArbitrageParams{Threshold: 0.01, MaxSize: 100, StalenessBound: 5 * time.Second})

	sig := a.Evaluate(pairInputs(now, 0.45, 0.52))

	require.Equal(t, domain.DirectionBuyBoth, sig.Direction)
	assert.InDelta(t, 0.03, sig.Edge, 1e-9)
	assert.Equal(t, 1.0, sig.Confidence)
	assert.Equal(t, "yes-token", sig.InstrumentID)
	assert.Equal(t, "no-token", sig.PairedInstrumentID)
	assert.Equal(t, 0.45, sig.LimitPrice)
	assert.Equal(t, 0.52, sig.PairedLimitPrice)
}

func TestArbitrage_RejectsFullyPricedPair(t *testing.T) {
	now := time.Now().UTC()
	a := NewArbitrage(ArbitrageParams{Threshold: 0.01, MaxSize: 100, StalenessBound: 5 * time.Second})

	// 0.50 + 0.51 = 1.01 > 1 - threshold.
	sig := a.Evaluate(pairInputs(now, 0.50, 0.51))

	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.False(t, sig.Actionable())
}

func TestArbitrage_ExactThresholdStillFires(t *testing.T) {
	now := time.Now().UTC()
	a := NewArbitrage(ArbitrageParams{Threshold: 0.01, MaxSize: 100, StalenessBound: 5 * time.Second})

	// combined == 1 - threshold exactly.
	sig := a.Evaluate(pairInputs(now, 0.49, 0.50))

	assert.Equal(t, domain.DirectionBuyBoth, sig.Direction)
	assert.InDelta(t, 0.01, sig.Edge, 1e-9)
}

func TestArbitrage_StaleQuoteSuppresses(t *testing.T) {
	now := time.Now().UTC()
	a := NewArbitrage(ArbitrageParams{Threshold: 0.01, MaxSize: 100, StalenessBound: 5 * time.Second})

	in := pairInputs(now, 0.45, 0.52)
	in.NoQuote.ObservedAt = now.Add(-6 * time.Second)

	sig := a.Evaluate(in)
	assert.Equal(t, domain.DirectionNone, sig.Direction)
}

func TestArbitrage_ClampsToThinnerLeg(t *testing.T) {
	now := time.Now().UTC()
	a := NewArbitrage(ArbitrageParams{Threshold: 0.01, MaxSize: 500, StalenessBound: 5 * time.Second})

	in := pairInputs(now, 0.45, 0.52)
	in.NoQuote.BestAskSize = 20 // 20 shares x 0.52 = 10.4 USDC of depth

	sig := a.Evaluate(in)
	require.Equal(t, domain.DirectionBuyBoth, sig.Direction)
	assert.InDelta(t, 10.4, sig.RawSizeHint, 1e-9)
}

func TestArbitrage_EmptyBookSuppresses(t *testing.T) {
	now := time.Now().UTC()
	a := NewArbitrage(ArbitrageParams{Threshold: 0.01, MaxSize: 100, StalenessBound: 5 * time.Second})

	in := pairInputs(now, 0.45, 0.52)
	in.YesQuote.BestAsk = 0

	sig := a.Evaluate(in)
	assert.Equal(t, domain.DirectionNone, sig.Direction)
}
