// Package estimator holds the fair-value estimators. Each estimator is pure
// with respect to its inputs: given the same quotes, reference observations,
// and parameters it always produces the same signal, which makes them
// directly unit-testable with literal fixtures. Anything time-varying (the
// evaluation instant, reference anchors) is passed in explicitly.
package estimator

import (
	"math"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// Inputs bundles the market observations an estimator evaluates. YesQuote and
// NoQuote are the two sides of one binary event; Reference is optional and
// only consumed by estimators that need an external price.
type Inputs struct {
	YesQuote  domain.MarketQuote
	NoQuote   domain.MarketQuote
	Reference domain.ReferenceObservation
	// ReferenceAnchor is the reference value at the time the venue quote was
	// last updated, tracked by the engine across ticks. Consumed by the lag
	// detector.
	ReferenceAnchor float64
	Now             time.Time
}

// yesFresh reports whether the YES quote is within the staleness bound.
func (in Inputs) yesFresh(bound time.Duration) bool {
	return !in.YesQuote.OlderThan(in.Now, bound)
}

func (in Inputs) noFresh(bound time.Duration) bool {
	return !in.NoQuote.OlderThan(in.Now, bound)
}

func (in Inputs) referenceFresh(bound time.Duration) bool {
	return !in.Reference.OlderThan(in.Now, bound)
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// clamp01 clips v into [0, 1].
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
