package execution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/scheduler"
)

type stubData struct {
	quotes map[string]domain.MarketQuote
}

func (s *stubData) GetQuote(_ context.Context, id string) (domain.MarketQuote, error) {
	q, ok := s.quotes[id]
	if !ok {
		return domain.MarketQuote{}, fmt.Errorf("%w: %s", domain.ErrUnavailable, id)
	}
	return q, nil
}

func (s *stubData) GetReference(_ context.Context, id string) (domain.ReferenceObservation, error) {
	return domain.ReferenceObservation{}, fmt.Errorf("%w: %s", domain.ErrUnavailable, id)
}

func newSimFixture(t *testing.T) (*Simulator, *stubData) {
	t.Helper()
	md := &stubData{quotes: map[string]domain.MarketQuote{
		"tok-yes": {
			InstrumentID: "tok-yes",
			BestBid:      0.48, BestBidSize: 500,
			BestAsk: 0.52, BestAskSize: 300,
		},
	}}
	clock := scheduler.NewVirtualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSimulator(md, clock, logger), md
}

func TestSimulatorBuyFillsAtAsk(t *testing.T) {
	sim, _ := newSimFixture(t)

	fill, err := sim.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "ord-1",
		InstrumentID:  "tok-yes",
		Direction:     domain.DirectionBuyYes,
		Size:          100,
		PriceLimit:    0.55,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.52, fill.FillPrice)
	assert.Equal(t, 100.0, fill.FillSize)
	assert.Equal(t, "ord-1", fill.OrderRef)
}

func TestSimulatorSellFillsAtBid(t *testing.T) {
	sim, _ := newSimFixture(t)

	fill, err := sim.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "ord-2",
		InstrumentID:  "tok-yes",
		Direction:     domain.DirectionSell,
		Size:          50,
		PriceLimit:    0.45,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.48, fill.FillPrice)
}

func TestSimulatorRejectsOutsideLimit(t *testing.T) {
	sim, _ := newSimFixture(t)

	_, err := sim.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "ord-3",
		InstrumentID:  "tok-yes",
		Direction:     domain.DirectionBuyYes,
		Size:          100,
		PriceLimit:    0.50, // ask is 0.52
	})
	require.ErrorIs(t, err, domain.ErrExecutionRejected)

	_, err = sim.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "ord-4",
		InstrumentID:  "tok-yes",
		Direction:     domain.DirectionSell,
		Size:          100,
		PriceLimit:    0.50, // bid is 0.48
	})
	require.ErrorIs(t, err, domain.ErrExecutionRejected)
}

func TestSimulatorFillOrKillDepth(t *testing.T) {
	sim, _ := newSimFixture(t)

	// 400 shares against 300 displayed at the ask.
	_, err := sim.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "ord-5",
		InstrumentID:  "tok-yes",
		Direction:     domain.DirectionBuyYes,
		Size:          400,
		PriceLimit:    0.55,
	})
	require.ErrorIs(t, err, domain.ErrExecutionRejected)

	// A zero limit sweeps the book regardless of displayed depth.
	fill, err := sim.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "ord-6",
		InstrumentID:  "tok-yes",
		Direction:     domain.DirectionSell,
		Size:          900,
		PriceLimit:    0,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.48, fill.FillPrice)
	assert.Equal(t, 900.0, fill.FillSize)
}

func TestSimulatorRejectsUnknownInstrument(t *testing.T) {
	sim, _ := newSimFixture(t)

	_, err := sim.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "ord-7",
		InstrumentID:  "tok-missing",
		Direction:     domain.DirectionBuyYes,
		Size:          10,
		PriceLimit:    0.5,
	})
	require.ErrorIs(t, err, domain.ErrExecutionRejected)
}

func TestSimulatorCancelSemantics(t *testing.T) {
	sim, _ := newSimFixture(t)

	fill, err := sim.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "ord-8",
		InstrumentID:  "tok-yes",
		Direction:     domain.DirectionBuyYes,
		Size:          10,
		PriceLimit:    0.55,
	})
	require.NoError(t, err)

	// A filled reference always reports the race.
	outcome, got, err := sim.CancelOrder(context.Background(), "ord-8")
	require.NoError(t, err)
	assert.Equal(t, domain.CancelAlreadyFilled, outcome)
	require.NotNil(t, got)
	assert.Equal(t, fill.FillPrice, got.FillPrice)

	// An unknown reference cancels cleanly.
	outcome, got, err = sim.CancelOrder(context.Background(), "ord-never-submitted")
	require.NoError(t, err)
	assert.Equal(t, domain.CancelOK, outcome)
	assert.Nil(t, got)
}

func TestHMACHeadersDeterministic(t *testing.T) {
	auth := &hmacAuth{
		Key:        "key-1",
		Secret:     "c2VjcmV0LWJ5dGVz", // base64("secret-bytes")
		Passphrase: "pass",
	}

	h1 := auth.headersAt(http.MethodPost, "/order", `{"a":1}`, 1700000000)
	h2 := auth.headersAt(http.MethodPost, "/order", `{"a":1}`, 1700000000)
	assert.Equal(t, h1, h2)
	assert.Equal(t, "key-1", h1["POLY_API_KEY"])
	assert.Equal(t, "1700000000", h1["POLY_TIMESTAMP"])
	assert.NotEmpty(t, h1["POLY_SIGNATURE"])

	// Different path, different signature.
	h3 := auth.headersAt(http.MethodPost, "/cancel", `{"a":1}`, 1700000000)
	assert.NotEqual(t, h1["POLY_SIGNATURE"], h3["POLY_SIGNATURE"])
}
