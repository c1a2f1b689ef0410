package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. A quote is
// stored at "quote:{instrumentID}" with top-of-book fields and a Unix
// nanosecond timestamp; a reference observation at "ref:{sourceID}".
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(instrumentID string) string {
	return "quote:" + instrumentID
}

func refKey(sourceID string) string {
	return "ref:" + sourceID
}

// SetQuote stores the latest top of book for an instrument.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.MarketQuote) error {
	fields := map[string]interface{}{
		"venue":    q.VenueID,
		"bid":      strconv.FormatFloat(q.BestBid, 'f', -1, 64),
		"bid_size": strconv.FormatFloat(q.BestBidSize, 'f', -1, 64),
		"ask":      strconv.FormatFloat(q.BestAsk, 'f', -1, 64),
		"ask_size": strconv.FormatFloat(q.BestAskSize, 'f', -1, 64),
		"ts":       strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(q.InstrumentID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.InstrumentID, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for an instrument. It returns
// domain.ErrUnavailable (wrapped) when no quote has been seen.
func (qc *QuoteCache) GetQuote(ctx context.Context, instrumentID string) (domain.MarketQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(instrumentID)).Result()
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: get quote %s: %w", instrumentID, err)
	}
	if len(vals) == 0 {
		return domain.MarketQuote{}, fmt.Errorf("%w: no quote for %s", domain.ErrUnavailable, instrumentID)
	}

	q := domain.MarketQuote{
		VenueID:      vals["venue"],
		InstrumentID: instrumentID,
	}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"bid", &q.BestBid},
		{"bid_size", &q.BestBidSize},
		{"ask", &q.BestAsk},
		{"ask_size", &q.BestAskSize},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(vals[f.name], 64)
		if err != nil {
			return domain.MarketQuote{}, fmt.Errorf("redis: parse quote %s field %s: %w", instrumentID, f.name, err)
		}
		*f.dst = v
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: parse quote %s ts: %w", instrumentID, err)
	}
	q.ObservedAt = time.Unix(0, tsNano)
	return q, nil
}

// SetReference stores the latest observation from an external reference feed.
func (qc *QuoteCache) SetReference(ctx context.Context, r domain.ReferenceObservation) error {
	fields := map[string]interface{}{
		"value": strconv.FormatFloat(r.Value, 'f', -1, 64),
		"ts":    strconv.FormatInt(r.ObservedAt.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, refKey(r.SourceID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set reference %s: %w", r.SourceID, err)
	}
	return nil
}

// GetReference retrieves the latest reference observation for a source. It
// returns domain.ErrUnavailable (wrapped) when the source has never reported.
func (qc *QuoteCache) GetReference(ctx context.Context, sourceID string) (domain.ReferenceObservation, error) {
	vals, err := qc.rdb.HGetAll(ctx, refKey(sourceID)).Result()
	if err != nil {
		return domain.ReferenceObservation{}, fmt.Errorf("redis: get reference %s: %w", sourceID, err)
	}
	if len(vals) == 0 {
		return domain.ReferenceObservation{}, fmt.Errorf("%w: no observation for %s", domain.ErrUnavailable, sourceID)
	}

	value, err := strconv.ParseFloat(vals["value"], 64)
	if err != nil {
		return domain.ReferenceObservation{}, fmt.Errorf("redis: parse reference %s value: %w", sourceID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.ReferenceObservation{}, fmt.Errorf("redis: parse reference %s ts: %w", sourceID, err)
	}

	return domain.ReferenceObservation{
		SourceID:   sourceID,
		Value:      value,
		ObservedAt: time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface checks. QuoteCache doubles as the MarketData pull
// interface for the strategy loops.
var (
	_ domain.QuoteCache = (*QuoteCache)(nil)
	_ domain.MarketData = (*QuoteCache)(nil)
)
