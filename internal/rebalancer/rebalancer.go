// Package rebalancer redistributes capital across tracked counterparties on
// a slow cadence. Each cycle works from a fresh discovery snapshot; the core
// keeps no static registry of tracked entities.
package rebalancer

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// Config sets the qualification predicate and the allocation bounds.
type Config struct {
	// TotalBudget is the capital distributed across all qualified entities
	// of one strategy kind, in USDC.
	TotalBudget float64
	// MinPoolSize is the allocation floor: an entity whose share falls
	// below it gets no pool at all.
	MinPoolSize float64
	// MaxEntityFraction is the allocation ceiling as a fraction of
	// TotalBudget per entity.
	MaxEntityFraction float64
	// MinTrades and MinWinRate gate entry into the qualified set alongside
	// the positive-PnL windows.
	MinTrades  int
	MinWinRate float64
	// MaxPositionFraction and MaxCounterpartyFraction are stamped onto
	// pools the plan creates.
	MaxPositionFraction     float64
	MaxCounterpartyFraction float64
}

// Plan is the outcome of one rebalance cycle. The engine applies it:
// creating and draining pools, retargeting balances, and refreshing observed
// bankrolls. Balance targets may be raised by the applier when a pool's
// reservation exceeds the target; the plan itself never inspects open
// positions.
type Plan struct {
	Create          []domain.CapitalPool
	Drain           []string
	Allocations     map[string]float64
	BankrollRefresh map[string]float64
}

// Empty reports whether the plan changes anything.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Drain) == 0 &&
		len(p.Allocations) == 0 && len(p.BankrollRefresh) == 0
}

// Rebalancer computes plans; it holds no state between cycles.
type Rebalancer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a rebalancer.
func New(cfg Config, logger *slog.Logger) *Rebalancer {
	return &Rebalancer{cfg: cfg, logger: logger.With("component", "rebalancer")}
}

// Qualifies is the qualification predicate: positive PnL in every lookback
// window plus the trade-count and win-rate gates. Losing positive-PnL status
// in any single window disqualifies the entity.
func (r *Rebalancer) Qualifies(m domain.EntityMetrics) bool {
	return m.PnL7d > 0 &&
		m.PnL30d > 0 &&
		m.PnLAllTime > 0 &&
		m.TotalTrades >= r.cfg.MinTrades &&
		m.WinRate >= r.cfg.MinWinRate
}

// Rebalance compares the candidate snapshot against the current pools of the
// snapshot's strategy kind and plans the adjustments.
//
// Allocation is proportional to each qualified entity's consistency score,
// clamped to the per-entity ceiling; shares below the floor are dropped
// rather than rounded up. Entities that no longer qualify have their pools
// drained; the pools are removed elsewhere once their positions close.
func (r *Rebalancer) Rebalance(snapshot domain.CandidateSnapshot, pools []domain.CapitalPool) Plan {
	plan := Plan{
		Allocations:     make(map[string]float64),
		BankrollRefresh: make(map[string]float64),
	}

	byOwner := make(map[string]domain.CapitalPool)
	for _, p := range pools {
		if p.Strategy == snapshot.Strategy {
			byOwner[p.OwnerRef] = p
		}
	}

	qualified := make([]domain.Candidate, 0, len(snapshot.Candidates))
	for _, c := range snapshot.Candidates {
		if r.Qualifies(c.Metrics) {
			qualified = append(qualified, c)
		}
	}

	allocations := r.allocate(qualified)

	seen := make(map[string]bool, len(qualified))
	for _, c := range qualified {
		target, viable := allocations[c.EntityID]
		if !viable {
			continue
		}
		seen[c.EntityID] = true

		pool, exists := byOwner[c.EntityID]
		if !exists {
			plan.Create = append(plan.Create, domain.CapitalPool{
				PoolID:                  PoolID(snapshot.Strategy, c.EntityID),
				OwnerRef:                c.EntityID,
				Strategy:                snapshot.Strategy,
				Balance:                 target,
				MaxPositionFraction:     r.cfg.MaxPositionFraction,
				MaxCounterpartyFraction: r.cfg.MaxCounterpartyFraction,
				CounterpartyBankroll:    c.Metrics.Bankroll,
				Status:                  domain.PoolStatusActive,
			})
			continue
		}

		if math.Abs(pool.Balance-target) > 1e-9 {
			plan.Allocations[pool.PoolID] = target
		}
		if math.Abs(pool.CounterpartyBankroll-c.Metrics.Bankroll) > 1e-9 {
			plan.BankrollRefresh[pool.PoolID] = c.Metrics.Bankroll
		}
	}

	for owner, pool := range byOwner {
		if seen[owner] || pool.Status == domain.PoolStatusDraining {
			continue
		}
		plan.Drain = append(plan.Drain, pool.PoolID)
	}
	sort.Strings(plan.Drain)

	r.logger.Info("rebalance planned",
		"strategy", snapshot.Strategy,
		"snapshot_version", snapshot.Version,
		"qualified", len(qualified),
		"create", len(plan.Create),
		"drain", len(plan.Drain),
		"retarget", len(plan.Allocations))
	return plan
}

// allocate splits the budget across qualified entities proportionally to
// consistency score. When every score is zero the split is equal. The
// ceiling clamp is applied after the proportional split; clipped surplus is
// deliberately left unallocated rather than recycled into weaker entities.
func (r *Rebalancer) allocate(qualified []domain.Candidate) map[string]float64 {
	out := make(map[string]float64, len(qualified))
	if len(qualified) == 0 || r.cfg.TotalBudget <= 0 {
		return out
	}

	totalWeight := 0.0
	for _, c := range qualified {
		totalWeight += c.Metrics.ConsistencyScore
	}
	equalSplit := totalWeight <= 0

	ceiling := r.cfg.TotalBudget * r.cfg.MaxEntityFraction
	for _, c := range qualified {
		var share float64
		if equalSplit {
			share = r.cfg.TotalBudget / float64(len(qualified))
		} else {
			share = r.cfg.TotalBudget * c.Metrics.ConsistencyScore / totalWeight
		}
		if r.cfg.MaxEntityFraction > 0 && share > ceiling {
			share = ceiling
		}
		if share < r.cfg.MinPoolSize {
			continue
		}
		out[c.EntityID] = share
	}
	return out
}

// PoolID derives the deterministic pool id for a strategy/entity pair.
func PoolID(strategy domain.StrategyKind, entityID string) string {
	return fmt.Sprintf("%s:%s", strategy, entityID)
}
