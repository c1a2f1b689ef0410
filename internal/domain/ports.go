package domain

import (
	"context"
	"time"
)

// ExecMode selects whether orders reach the venue or are simulated.
type ExecMode string

const (
	ModeDryRun ExecMode = "dry_run"
	ModeLive   ExecMode = "live"
)

// MarketData is the pull interface the core uses for current quotes and
// reference prices. Implementations return ErrUnavailable (wrapped) when no
// fresh data exists; they never block beyond ctx.
type MarketData interface {
	GetQuote(ctx context.Context, instrumentID string) (MarketQuote, error)
	GetReference(ctx context.Context, sourceID string) (ReferenceObservation, error)
}

// OrderRequest is what the lifecycle manager hands to the execution port.
// Orders are fill-or-kill limit orders at PriceLimit; PriceLimit zero means
// take whatever the book offers (forced flattens).
type OrderRequest struct {
	// ClientOrderID is assigned by the caller before submission so a timed
	// out order can still be cancelled by reference.
	ClientOrderID string
	InstrumentID  string
	Direction     Direction
	// Size is in shares (outcome tokens), not notional.
	Size       float64
	PriceLimit float64
	Mode       ExecMode
}

// Fill is a successful execution result. FillPrice may differ from the
// request's PriceLimit (price improvement); FillSize never exceeds the
// requested size.
type Fill struct {
	OrderRef  string
	FillPrice float64
	FillSize  float64
	FilledAt  time.Time
}

// CancelOutcome distinguishes a cancel that landed from one that raced a fill.
type CancelOutcome string

const (
	CancelOK            CancelOutcome = "cancelled"
	CancelAlreadyFilled CancelOutcome = "already_filled"
)

// Execution is the abstract order port. Every call carries a bounded wait via
// ctx; exceeding it is treated by callers as a rejection, never a hang.
type Execution interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error)
	// CancelOrder cancels a pending order. When the cancel races a fill the
	// outcome is CancelAlreadyFilled together with the fill; callers must
	// treat that as an immediate unwind requirement, not an error.
	CancelOrder(ctx context.Context, orderRef string) (CancelOutcome, *Fill, error)
}

// Discovery supplies ranked candidate counterparties with their performance
// metrics. Consumed only by the rebalancer.
type Discovery interface {
	ListCandidates(ctx context.Context, kind StrategyKind) (CandidateSnapshot, error)
	// RecentTrades returns the entity's trades observed since the given
	// instant, newest last. Consumed by the copy/counter estimators.
	RecentTrades(ctx context.Context, entityID string, since time.Time) ([]ObservedTrade, error)
}
