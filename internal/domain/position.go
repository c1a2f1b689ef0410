package domain

import "time"

// PositionState is a node in the position lifecycle state machine.
//
//	pending → open → closing → closed
//	pending → closed            (entry rejected or timed out)
//	open    → failed_unwind → closed  (paired-leg failure, forced flatten)
type PositionState string

const (
	PositionPending      PositionState = "pending"
	PositionOpen         PositionState = "open"
	PositionClosing      PositionState = "closing"
	PositionClosed       PositionState = "closed"
	PositionFailedUnwind PositionState = "failed_unwind"
)

// ExitReason records why a position left the open state.
type ExitReason string

const (
	ExitMaxHold      ExitReason = "max_hold_elapsed"
	ExitConverged    ExitReason = "price_converged"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitResolved     ExitReason = "market_resolved"
	ExitForcedUnwind ExitReason = "forced_unwind"
	ExitEntryFailed  ExitReason = "entry_failed"
	ExitCancelled    ExitReason = "cancelled"
)

// Position is owned exclusively by the lifecycle manager. It references
// exactly one pool; a pool backs many positions bounded by its exposure
// limits. CommittedSize is fixed at creation and never increased.
type Position struct {
	PositionID   string
	PoolID       string
	Strategy     StrategyKind
	InstrumentID string
	// PairedInstrumentID and PairedEntryPrice are set for two-legged
	// arbitrage positions.
	PairedInstrumentID string
	Direction          Direction
	CommittedSize      float64
	// EntryPrice is the actual fill price, not the quoted price.
	EntryPrice       float64
	PairedEntryPrice float64
	// FairValue is the model price at entry, used for the convergence exit.
	FairValue float64
	// TakeProfit and StopLoss are optional absolute price levels.
	TakeProfit *float64
	StopLoss   *float64
	// MaxHold bounds the holding period; zero disables the time exit.
	MaxHold         time.Duration
	State           PositionState
	ExitReason      *ExitReason
	ExitPrice       *float64
	RealizedPnL     *float64
	OpenedAt        time.Time
	LastEvaluatedAt time.Time
	ClosedAt        *time.Time
	// OrderRef is the venue's reference for the pending entry order, used
	// for cancellation before confirmation.
	OrderRef string
}

// Terminal reports whether the position has reached a final state.
func (p Position) Terminal() bool {
	return p.State == PositionClosed
}

// HeldFor returns how long the position has been open as of now.
func (p Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}
