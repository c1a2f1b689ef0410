package domain

import "time"

// EntityMetrics is the performance snapshot the discovery port supplies for a
// candidate counterparty. The core never computes these; it only consumes them.
type EntityMetrics struct {
	PnL7d        float64
	PnL30d       float64
	PnLAllTime   float64
	WinRate      float64
	TotalTrades  int
	AvgTradeSize float64
	// Bankroll is the entity's observed wallet balance, used for
	// proportional copy sizing and counterparty caps.
	Bankroll float64
	// ConsistencyScore in [0,1] measures how stable the qualifying metric is
	// across the lookback windows; the rebalancer allocates proportionally
	// to it.
	ConsistencyScore   float64
	RiskAdjustedReturn float64
}

// Candidate is one entry of the discovery port's ranked snapshot.
type Candidate struct {
	EntityID string
	Metrics  EntityMetrics
}

// CandidateSnapshot is a versioned, immutable view of the candidate set for
// one rebalance cycle. The core holds no static trader registry; each cycle
// works from a fresh snapshot.
type CandidateSnapshot struct {
	Strategy   StrategyKind
	Version    int64
	Candidates []Candidate
	TakenAt    time.Time
}

// ObservedTrade is a trade by a tracked entity, consumed by the copy and
// counter estimators.
type ObservedTrade struct {
	EntityID     string
	InstrumentID string
	Direction    Direction
	Size         float64
	Price        float64
	ObservedAt   time.Time
}
