// Package execution provides the order port implementations: a book-driven
// simulator for dry_run mode and a REST client for the live venue.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/scheduler"
)

// fillHistory bounds the number of completed orders the simulator remembers
// for cancel-by-reference lookups.
const fillHistory = 1024

// Simulator fills orders against the current top of book without touching the
// venue. Orders are fill-or-kill: either the whole size trades at or inside
// the price limit, or the order is rejected.
type Simulator struct {
	md     domain.MarketData
	clock  scheduler.Clock
	logger *slog.Logger

	mu    sync.Mutex
	fills map[string]domain.Fill
	order []string // insertion order of fill refs, oldest first
}

// NewSimulator creates a dry-run execution port backed by md for pricing.
func NewSimulator(md domain.MarketData, clock scheduler.Clock, logger *slog.Logger) *Simulator {
	return &Simulator{
		md:     md,
		clock:  clock,
		logger: logger.With("component", "execution.simulator"),
		fills:  make(map[string]domain.Fill),
	}
}

// SubmitOrder fills req against the current book. A zero PriceLimit means
// take whatever the book offers at any price; a positive limit is enforced
// together with top-of-book depth.
func (s *Simulator) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	if req.Size <= 0 {
		return domain.Fill{}, fmt.Errorf("%w: non-positive size %.4f", domain.ErrExecutionRejected, req.Size)
	}

	quote, err := s.md.GetQuote(ctx, req.InstrumentID)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("%w: no book for %s: %v", domain.ErrExecutionRejected, req.InstrumentID, err)
	}

	var price, depth float64
	switch req.Direction {
	case domain.DirectionSell:
		price, depth = quote.BestBid, quote.BestBidSize
		if price <= 0 {
			return domain.Fill{}, fmt.Errorf("%w: empty bid side for %s", domain.ErrExecutionRejected, req.InstrumentID)
		}
		if req.PriceLimit > 0 && price < req.PriceLimit {
			return domain.Fill{}, fmt.Errorf("%w: bid %.4f below limit %.4f", domain.ErrExecutionRejected, price, req.PriceLimit)
		}
	case domain.DirectionBuyYes, domain.DirectionBuyNo:
		price, depth = quote.BestAsk, quote.BestAskSize
		if price <= 0 {
			return domain.Fill{}, fmt.Errorf("%w: empty ask side for %s", domain.ErrExecutionRejected, req.InstrumentID)
		}
		if req.PriceLimit > 0 && price > req.PriceLimit {
			return domain.Fill{}, fmt.Errorf("%w: ask %.4f above limit %.4f", domain.ErrExecutionRejected, price, req.PriceLimit)
		}
	default:
		return domain.Fill{}, fmt.Errorf("%w: direction %q not tradable", domain.ErrExecutionRejected, req.Direction)
	}

	// Forced flattens (limit 0) sweep the book; limit orders are
	// fill-or-kill against displayed depth.
	if req.PriceLimit > 0 && depth > 0 && req.Size > depth {
		return domain.Fill{}, fmt.Errorf("%w: size %.2f exceeds displayed depth %.2f", domain.ErrExecutionRejected, req.Size, depth)
	}

	fill := domain.Fill{
		OrderRef:  req.ClientOrderID,
		FillPrice: price,
		FillSize:  req.Size,
		FilledAt:  s.clock.Now(),
	}
	s.remember(fill)

	s.logger.Debug("simulated fill",
		"instrument", req.InstrumentID,
		"direction", req.Direction,
		"size", req.Size,
		"price", price)
	return fill, nil
}

// CancelOrder resolves a cancel-by-reference. The simulator fills
// synchronously, so a known reference always means the order already traded.
func (s *Simulator) CancelOrder(ctx context.Context, orderRef string) (domain.CancelOutcome, *domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fill, ok := s.fills[orderRef]; ok {
		f := fill
		return domain.CancelAlreadyFilled, &f, nil
	}
	return domain.CancelOK, nil, nil
}

func (s *Simulator) remember(fill domain.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills[fill.OrderRef] = fill
	s.order = append(s.order, fill.OrderRef)
	for len(s.order) > fillHistory {
		delete(s.fills, s.order[0])
		s.order = s.order[1:]
	}
}

var _ domain.Execution = (*Simulator)(nil)
