package estimator

import (
	"fmt"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// MirrorHeuristicVersion identifies the side-selection rule the counter mode
// applies. v1 is a plain inversion: a tracked entity buying YES is countered
// by buying NO, and vice versa. The rule is deliberately explicit and
// versioned so its accuracy can be audited rather than assumed.
const MirrorHeuristicVersion = 1

// MirrorParams configures the copy/counter estimator for one tracked entity.
type MirrorParams struct {
	Strategy domain.StrategyKind // StrategyCopy or StrategyCounter
	EntityID string
	// PoolBalance and EntityBankroll drive proportional sizing:
	// hint = trade size x PoolBalance / EntityBankroll.
	PoolBalance    float64
	EntityBankroll float64
	// Confidence carries the entity's blended quality score, computed by the
	// rebalancer from win rate and consistency.
	Confidence float64
	// MaxTradeAge ignores observed trades older than this.
	MaxTradeAge    time.Duration
	StalenessBound time.Duration
}

// Mirror turns a tracked entity's observed trade into a signal: copy pools
// take the same side, counter pools take the opposite one. It is pure; the
// engine supplies the observed trade and the current quote for its
// instrument.
type Mirror struct {
	params MirrorParams
}

// NewMirror creates the copy/counter estimator for one tracked entity.
func NewMirror(params MirrorParams) *Mirror {
	return &Mirror{params: params}
}

// EvaluateTrade converts one observed trade into a signal. quote is the
// current top of book for the trade's instrument.
func (m *Mirror) EvaluateTrade(trade domain.ObservedTrade, quote domain.MarketQuote, now time.Time) domain.Signal {
	strategyID := string(m.params.Strategy)
	p := m.params

	if now.Sub(trade.ObservedAt) > p.MaxTradeAge {
		return domain.None(strategyID, trade.InstrumentID, "observed trade too old", now)
	}
	if quote.OlderThan(now, p.StalenessBound) {
		return domain.None(strategyID, trade.InstrumentID, "stale quote", now)
	}
	if quote.BestAsk <= 0 {
		return domain.None(strategyID, trade.InstrumentID, "empty book", now)
	}
	if p.EntityBankroll <= 0 {
		return domain.None(strategyID, trade.InstrumentID, "unknown entity bankroll", now)
	}

	direction := trade.Direction
	if p.Strategy == domain.StrategyCounter {
		direction = invert(direction)
		if direction == domain.DirectionNone {
			return domain.None(strategyID, trade.InstrumentID, "uninvertible side", now)
		}
	}

	hint := trade.Size * trade.Price * (p.PoolBalance / p.EntityBankroll)

	return domain.Signal{
		StrategyID:   strategyID,
		InstrumentID: trade.InstrumentID,
		Direction:    direction,
		Edge:         0, // no model price; conviction comes from the entity's track record
		Confidence:   clamp01(p.Confidence),
		RawSizeHint:  hint,
		LimitPrice:   quote.BestAsk,
		Reason: fmt.Sprintf("%s %s trade %.2f@%.4f (ratio %.5f, heuristic v%d)",
			p.Strategy, p.EntityID, trade.Size, trade.Price,
			p.PoolBalance/p.EntityBankroll, MirrorHeuristicVersion),
		EvaluatedAt: now,
	}
}

// invert maps a side to its counter side under heuristic v1.
func invert(d domain.Direction) domain.Direction {
	switch d {
	case domain.DirectionBuyYes:
		return domain.DirectionBuyNo
	case domain.DirectionBuyNo:
		return domain.DirectionBuyYes
	default:
		return domain.DirectionNone
	}
}
