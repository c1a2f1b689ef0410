package domain

import "time"

// Direction is the side a signal wants to take.
type Direction string

const (
	DirectionBuyYes  Direction = "buy_yes"
	DirectionBuyNo   Direction = "buy_no"
	DirectionBuyBoth Direction = "buy_both" // paired arbitrage entry
	DirectionNone    Direction = "none"
	// DirectionSell closes an existing long. Only exit orders issued by the
	// lifecycle manager carry it; estimators never emit it.
	DirectionSell Direction = "sell"
)

// Signal is the output of one estimator evaluation. It lives for exactly one
// tick: the engine sizes and acts on it, then discards it. Never persisted.
type Signal struct {
	StrategyID   string
	InstrumentID string
	// PairedInstrumentID is set for buy_both signals: the opposite-outcome
	// token that must be filled together with InstrumentID.
	PairedInstrumentID string
	Direction          Direction
	// Edge is estimated fair value minus market price (or the probability
	// gap), signed.
	Edge float64
	// Confidence scales the raw size hint, in [0, 1].
	Confidence float64
	// RawSizeHint is the estimator's unclamped notional suggestion in USDC.
	RawSizeHint float64
	// LimitPrice is the price the order must not cross. For buy_both it is
	// the YES leg's ask; PairedLimitPrice carries the NO leg's.
	LimitPrice       float64
	PairedLimitPrice float64
	// MaxHold bounds how long the resulting position may be held. Zero means
	// no time-based exit. Set by the lag detector.
	MaxHold time.Duration
	// TakeProfitPct and StopLossPct derive absolute exit levels from the
	// entry fill price. Zero disables the level.
	TakeProfitPct float64
	StopLossPct   float64
	Reason        string
	// EvaluatedAt is the tick time of the evaluation that produced this signal.
	EvaluatedAt time.Time
}

// None returns a suppressed signal for the given strategy and instrument.
// reason records why the estimator declined to act (stale inputs, degenerate
// parameters, no edge).
func None(strategyID, instrumentID, reason string, at time.Time) Signal {
	return Signal{
		StrategyID:   strategyID,
		InstrumentID: instrumentID,
		Direction:    DirectionNone,
		Reason:       reason,
		EvaluatedAt:  at,
	}
}

// Actionable reports whether the signal requests an order.
func (s Signal) Actionable() bool {
	return s.Direction != DirectionNone && s.Direction != "" && s.Confidence > 0
}
