package domain

import "time"

// MarketQuote is an immutable snapshot of the top of book for one instrument
// (a YES or NO token). Newer quotes supersede older ones; a quote is never
// mutated in place.
type MarketQuote struct {
	VenueID      string
	InstrumentID string
	BestBid      float64
	BestBidSize  float64
	BestAsk      float64
	BestAskSize  float64
	ObservedAt   time.Time
}

// Mid returns the mid price, or 0 when either side of the book is empty.
func (q MarketQuote) Mid() float64 {
	if q.BestBid <= 0 || q.BestAsk <= 0 {
		return 0
	}
	return (q.BestBid + q.BestAsk) / 2
}

// Spread returns ask minus bid, or 0 when either side is missing.
func (q MarketQuote) Spread() float64 {
	if q.BestBid <= 0 || q.BestAsk <= 0 {
		return 0
	}
	return q.BestAsk - q.BestBid
}

// OlderThan reports whether the quote was observed more than maxAge before now.
func (q MarketQuote) OlderThan(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.ObservedAt) > maxAge
}

// ReferenceObservation is an immutable observation from an external reference
// feed, e.g. a spot index price. Same supersede-never-mutate contract as
// MarketQuote.
type ReferenceObservation struct {
	SourceID   string
	Value      float64
	ObservedAt time.Time
}

// OlderThan reports whether the observation is older than maxAge relative to now.
func (r ReferenceObservation) OlderThan(now time.Time, maxAge time.Duration) bool {
	return now.Sub(r.ObservedAt) > maxAge
}
