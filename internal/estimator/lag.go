package estimator

import (
	"fmt"
	"math"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// LagParams configures the stale-quote lag detector.
type LagParams struct {
	// MoveThreshold is the fractional reference move, since the venue quote
	// last updated, beyond which the resting book is judged stale.
	MoveThreshold float64
	// MaxSize is the notional ceiling per entry in USDC. Entries are always
	// clamped to the resting best level (never sweep depth).
	MaxSize float64
	// MaxHold bounds how long a lag position may be held before an
	// unconditional time exit.
	MaxHold time.Duration
	// StalenessBound applies to the reference feed; an old reference means
	// no lag can be judged, not that the venue is stale.
	StalenessBound time.Duration
}

// Lag exploits the delay between a fast reference feed and a slower venue
// book: when the reference has moved past the threshold but the resting YES
// ask has not repriced, the ask side matching the move's direction is cheap.
// Signals carry MaxHold, which the lifecycle manager enforces as an
// unconditional exit.
type Lag struct {
	params LagParams
}

// NewLag creates the lag detector with the given parameters.
func NewLag(params LagParams) *Lag {
	return &Lag{params: params}
}

// Evaluate compares the reference move since the quote's last update against
// the threshold and, when the book looks stale, buys the mispriced side at
// the resting best price only. The YES quote is the up/inside token and the
// NO quote the down/outside token of the same event.
func (l *Lag) Evaluate(in Inputs) domain.Signal {
	strategyID := string(domain.StrategyLagArb)
	p := l.params

	if !in.referenceFresh(p.StalenessBound) {
		return domain.None(strategyID, in.YesQuote.InstrumentID, "stale reference", in.Now)
	}
	if in.ReferenceAnchor <= 0 || in.Reference.Value <= 0 {
		return domain.None(strategyID, in.YesQuote.InstrumentID, "no reference anchor", in.Now)
	}

	move := in.Reference.Value/in.ReferenceAnchor - 1
	if math.Abs(move) < p.MoveThreshold {
		return domain.None(strategyID, in.YesQuote.InstrumentID,
			fmt.Sprintf("move %.5f below threshold", move), in.Now)
	}

	// The reference moved but the book did not: buy the side the move favors
	// at its resting ask.
	quote := in.YesQuote
	direction := domain.DirectionBuyYes
	if move < 0 {
		quote = in.NoQuote
		direction = domain.DirectionBuyNo
	}
	if quote.BestAsk <= 0 {
		return domain.None(strategyID, quote.InstrumentID, "empty book", in.Now)
	}
	// A book that repriced since the reference anchor was taken is not
	// stale; the opportunity is gone.
	if quote.ObservedAt.After(in.Reference.ObservedAt) {
		return domain.None(strategyID, quote.InstrumentID, "book already repriced", in.Now)
	}

	hint := p.MaxSize
	if depth := quote.BestAskSize * quote.BestAsk; depth > 0 && depth < hint {
		hint = depth
	}

	return domain.Signal{
		StrategyID:   strategyID,
		InstrumentID: quote.InstrumentID,
		Direction:    direction,
		Edge:         math.Abs(move),
		Confidence:   clamp01(math.Abs(move) / (2 * p.MoveThreshold)),
		RawSizeHint:  hint,
		LimitPrice:   quote.BestAsk,
		MaxHold:      p.MaxHold,
		Reason:       fmt.Sprintf("reference moved %.5f, resting ask %.4f unchanged", move, quote.BestAsk),
		EvaluatedAt:  in.Now,
	}
}
