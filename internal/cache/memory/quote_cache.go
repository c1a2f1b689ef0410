// Package memory provides a process-local quote cache for runs without
// Redis. Same supersede-never-mutate contract as the Redis cache.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// QuoteCache is a mutex-guarded map cache for quotes and reference
// observations.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.MarketQuote
	refs   map[string]domain.ReferenceObservation
}

// NewQuoteCache creates an empty cache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{
		quotes: make(map[string]domain.MarketQuote),
		refs:   make(map[string]domain.ReferenceObservation),
	}
}

func (c *QuoteCache) SetQuote(_ context.Context, q domain.MarketQuote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.InstrumentID] = q
	return nil
}

func (c *QuoteCache) GetQuote(_ context.Context, instrumentID string) (domain.MarketQuote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[instrumentID]
	if !ok {
		return domain.MarketQuote{}, fmt.Errorf("%w: no quote for %s", domain.ErrUnavailable, instrumentID)
	}
	return q, nil
}

func (c *QuoteCache) SetReference(_ context.Context, r domain.ReferenceObservation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs[r.SourceID] = r
	return nil
}

func (c *QuoteCache) GetReference(_ context.Context, sourceID string) (domain.ReferenceObservation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.refs[sourceID]
	if !ok {
		return domain.ReferenceObservation{}, fmt.Errorf("%w: no observation for %s", domain.ErrUnavailable, sourceID)
	}
	return r, nil
}

var (
	_ domain.QuoteCache = (*QuoteCache)(nil)
	_ domain.MarketData = (*QuoteCache)(nil)
)
