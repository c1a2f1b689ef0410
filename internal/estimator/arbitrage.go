package estimator

import (
	"fmt"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// ArbitrageParams configures the Dutch-book sum detector.
type ArbitrageParams struct {
	// Threshold is the minimum discount below $1 required to act; combined
	// asks at or below 1-Threshold trigger a buy_both signal.
	Threshold float64
	// MaxSize is the notional ceiling per opportunity in USDC.
	MaxSize float64
	// StalenessBound suppresses signals computed from quotes older than this.
	StalenessBound time.Duration
}

// Arbitrage detects the classic binary mispricing: when the best YES ask plus
// the best NO ask sums to less than $1, buying both legs locks in the
// difference regardless of outcome. Risk-free by construction, bounded only
// by execution and liquidity risk, so confidence is always 1.
type Arbitrage struct {
	params ArbitrageParams
}

// NewArbitrage creates the sum detector with the given parameters.
func NewArbitrage(params ArbitrageParams) *Arbitrage {
	return &Arbitrage{params: params}
}

// Evaluate inspects the paired asks and emits buy_both when the combined
// price clears the threshold, none otherwise. Stale quotes fail closed.
func (a *Arbitrage) Evaluate(in Inputs) domain.Signal {
	strategyID := string(domain.StrategyArbitrage)

	if !in.yesFresh(a.params.StalenessBound) || !in.noFresh(a.params.StalenessBound) {
		return domain.None(strategyID, in.YesQuote.InstrumentID, "stale quotes", in.Now)
	}

	yesAsk := in.YesQuote.BestAsk
	noAsk := in.NoQuote.BestAsk
	if yesAsk <= 0 || noAsk <= 0 {
		return domain.None(strategyID, in.YesQuote.InstrumentID, "empty book", in.Now)
	}

	combined := yesAsk + noAsk
	if combined > 1-a.params.Threshold {
		return domain.None(strategyID, in.YesQuote.InstrumentID,
			fmt.Sprintf("combined %.4f above %.4f", combined, 1-a.params.Threshold), in.Now)
	}

	edge := 1 - combined

	// Never sweep depth: the pair is only risk-free at the quoted levels, so
	// size down to the thinner leg's resting notional.
	hint := a.params.MaxSize
	if depth := in.YesQuote.BestAskSize * yesAsk; depth > 0 && depth < hint {
		hint = depth
	}
	if depth := in.NoQuote.BestAskSize * noAsk; depth > 0 && depth < hint {
		hint = depth
	}

	return domain.Signal{
		StrategyID:         strategyID,
		InstrumentID:       in.YesQuote.InstrumentID,
		PairedInstrumentID: in.NoQuote.InstrumentID,
		Direction:          domain.DirectionBuyBoth,
		Edge:               edge,
		Confidence:         1,
		RawSizeHint:        hint,
		LimitPrice:         yesAsk,
		PairedLimitPrice:   noAsk,
		Reason:             fmt.Sprintf("sum %.4f < 1, locked edge %.4f", combined, edge),
		EvaluatedAt:        in.Now,
	}
}
