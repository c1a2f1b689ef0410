package estimator

import (
	"fmt"
	"math"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// BreakoutParams configures the lognormal band-breakout estimator. The market
// pays YES when the reference price finishes inside [BandLow, BandHigh] and
// NO when it breaks out.
type BreakoutParams struct {
	BandLow  float64
	BandHigh float64
	// Expiry is the market's settlement instant; time-to-expiry is derived
	// from it each evaluation.
	Expiry time.Time
	// Volatility is the annualized log-return volatility sigma. The caller
	// resolves it from the configured source chain before evaluation.
	Volatility float64
	// EdgeThreshold is the minimum model-vs-market probability gap to act,
	// before costs.
	EdgeThreshold float64
	// FeeRate is the venue's taker fee as a fraction of notional, added to
	// the half-spread when estimating entry costs.
	FeeRate float64
	MaxSize float64
	// StalenessBound applies to both the venue quotes and the reference.
	StalenessBound time.Duration
}

// Breakout prices an inside-the-band binary under a driftless lognormal
// terminal distribution: log-returns over the remaining life are
// N(-sigma^2 T/2, sigma^2 T), so
//
//	P(inside) = Phi(z_U) - Phi(z_L),  z_X = (ln(X/S) + sigma^2 T/2) / (sigma sqrt(T))
//
// and P(breakout) is the complement. The edge on a side is its model
// probability minus its ask; a signal fires only when the edge clears the
// threshold plus estimated costs.
type Breakout struct {
	params BreakoutParams
}

// NewBreakout creates the estimator with the given parameters.
func NewBreakout(params BreakoutParams) *Breakout {
	return &Breakout{params: params}
}

// InsideProbability returns P(reference finishes inside the band) for spot s
// and time-to-expiry t in years. Exposed for direct testing; degenerate
// parameters (t<=0, sigma<=0, non-positive band or spot) return -1 to signal
// an undefined distribution.
func (b *Breakout) InsideProbability(s, t float64) float64 {
	p := b.params
	if t <= 0 || p.Volatility <= 0 || s <= 0 || p.BandLow <= 0 || p.BandHigh <= p.BandLow {
		return -1
	}
	sigSqrtT := p.Volatility * math.Sqrt(t)
	halfVar := p.Volatility * p.Volatility * t / 2
	zLow := (math.Log(p.BandLow/s) + halfVar) / sigSqrtT
	zHigh := (math.Log(p.BandHigh/s) + halfVar) / sigSqrtT
	return normCDF(zHigh) - normCDF(zLow)
}

// Evaluate compares the model probabilities against the market's asks and
// emits the side with a qualifying edge. Undefined distributions and stale
// inputs fail closed to a none signal.
func (b *Breakout) Evaluate(in Inputs) domain.Signal {
	strategyID := string(domain.StrategyBreakout)
	p := b.params

	if !in.yesFresh(p.StalenessBound) || !in.noFresh(p.StalenessBound) {
		return domain.None(strategyID, in.YesQuote.InstrumentID, "stale quotes", in.Now)
	}
	if !in.referenceFresh(p.StalenessBound) {
		return domain.None(strategyID, in.YesQuote.InstrumentID, "stale reference", in.Now)
	}

	t := p.Expiry.Sub(in.Now).Hours() / (365 * 24)
	pInside := b.InsideProbability(in.Reference.Value, t)
	if pInside < 0 {
		return domain.None(strategyID, in.YesQuote.InstrumentID, "degenerate distribution", in.Now)
	}
	pBreakout := 1 - pInside

	yesAsk, noAsk := in.YesQuote.BestAsk, in.NoQuote.BestAsk
	if yesAsk <= 0 || noAsk <= 0 {
		return domain.None(strategyID, in.YesQuote.InstrumentID, "empty book", in.Now)
	}

	// Entry cost estimate: half the spread plus the venue fee.
	yesCost := in.YesQuote.Spread()/2 + p.FeeRate*yesAsk
	noCost := in.NoQuote.Spread()/2 + p.FeeRate*noAsk

	yesEdge := pInside - yesAsk
	noEdge := pBreakout - noAsk

	type side struct {
		direction  domain.Direction
		instrument string
		edge       float64
		hurdle     float64
		limit      float64
		model      float64
	}
	sides := []side{
		{domain.DirectionBuyYes, in.YesQuote.InstrumentID, yesEdge, p.EdgeThreshold + yesCost, yesAsk, pInside},
		{domain.DirectionBuyNo, in.NoQuote.InstrumentID, noEdge, p.EdgeThreshold + noCost, noAsk, pBreakout},
	}
	best := sides[0]
	if sides[1].edge-sides[1].hurdle > best.edge-best.hurdle {
		best = sides[1]
	}
	if best.edge < best.hurdle {
		return domain.None(strategyID, in.YesQuote.InstrumentID,
			fmt.Sprintf("edge %.4f below hurdle %.4f", best.edge, best.hurdle), in.Now)
	}

	return domain.Signal{
		StrategyID:   strategyID,
		InstrumentID: best.instrument,
		Direction:    best.direction,
		Edge:         best.edge,
		Confidence:   clamp01(best.edge / (2 * p.EdgeThreshold)),
		RawSizeHint:  p.MaxSize,
		LimitPrice:   best.limit,
		Reason: fmt.Sprintf("model %.4f vs market %.4f (sigma %.2f, T %.5fy)",
			best.model, best.limit, p.Volatility, t),
		EvaluatedAt: in.Now,
	}
}
