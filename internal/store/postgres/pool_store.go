package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const poolSelectCols = `pool_id, owner_ref, strategy, balance, reserved,
	max_position_fraction, max_counterparty_fraction, counterparty_bankroll,
	status, consecutive_failures, degraded_at, cooldown_until, created_at, updated_at`

// Upsert inserts or replaces the pool row.
func (s *PoolStore) Upsert(ctx context.Context, p domain.CapitalPool) error {
	const query = `
		INSERT INTO capital_pools (
			pool_id, owner_ref, strategy, balance, reserved,
			max_position_fraction, max_counterparty_fraction, counterparty_bankroll,
			status, consecutive_failures, degraded_at, cooldown_until, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (pool_id) DO UPDATE SET
			owner_ref                 = EXCLUDED.owner_ref,
			strategy                  = EXCLUDED.strategy,
			balance                   = EXCLUDED.balance,
			reserved                  = EXCLUDED.reserved,
			max_position_fraction     = EXCLUDED.max_position_fraction,
			max_counterparty_fraction = EXCLUDED.max_counterparty_fraction,
			counterparty_bankroll     = EXCLUDED.counterparty_bankroll,
			status                    = EXCLUDED.status,
			consecutive_failures      = EXCLUDED.consecutive_failures,
			degraded_at               = EXCLUDED.degraded_at,
			cooldown_until            = EXCLUDED.cooldown_until,
			updated_at                = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.PoolID, p.OwnerRef, string(p.Strategy), p.Balance, p.Reserved,
		p.MaxPositionFraction, p.MaxCounterpartyFraction, p.CounterpartyBankroll,
		string(p.Status), p.ConsecutiveFailures, p.DegradedAt, p.CooldownUntil,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pool %s: %w", p.PoolID, err)
	}
	return nil
}

// GetByID retrieves a single pool by its ID.
func (s *PoolStore) GetByID(ctx context.Context, poolID string) (domain.CapitalPool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolSelectCols+` FROM capital_pools WHERE pool_id = $1`, poolID)

	p, err := scanPoolRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.CapitalPool{}, domain.ErrNotFound
		}
		return domain.CapitalPool{}, fmt.Errorf("postgres: get pool %s: %w", poolID, err)
	}
	return p, nil
}

// List returns all pools ordered by creation time.
func (s *PoolStore) List(ctx context.Context) ([]domain.CapitalPool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poolSelectCols+` FROM capital_pools ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.CapitalPool
	for rows.Next() {
		p, err := scanPoolRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// Delete removes the pool row.
func (s *PoolStore) Delete(ctx context.Context, poolID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM capital_pools WHERE pool_id = $1`, poolID)
	if err != nil {
		return fmt.Errorf("postgres: delete pool %s: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPoolRow(row pgx.Row) (domain.CapitalPool, error) {
	var p domain.CapitalPool
	var strategy, status string

	err := row.Scan(
		&p.PoolID, &p.OwnerRef, &strategy, &p.Balance, &p.Reserved,
		&p.MaxPositionFraction, &p.MaxCounterpartyFraction, &p.CounterpartyBankroll,
		&status, &p.ConsecutiveFailures, &p.DegradedAt, &p.CooldownUntil,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.CapitalPool{}, err
	}
	p.Strategy = domain.StrategyKind(strategy)
	p.Status = domain.PoolStatus(status)
	return p, nil
}

var _ domain.PoolStore = (*PoolStore)(nil)
