package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cakekart/checkout-engine/internal/domain/order"
)

const (
	claimIdemKeySQL = `INSERT INTO idempotency_keys (key, status)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING`

	getIdemKeySQL = `SELECT key, status, COALESCE(order_id, '')
		FROM idempotency_keys WHERE key = $1`

	completeIdemKeySQL = `UPDATE idempotency_keys
		SET status = $2, order_id = $3 WHERE key = $1`

	failIdemKeySQL = `UPDATE idempotency_keys
		SET status = $2, failure_reason = $3 WHERE key = $1`
)

var _ order.IdempotencyStore = (*IdempotencyRepository)(nil)

// IdempotencyRepository implements order.IdempotencyStore backed by
// PostgreSQL. The conditional insert on the primary key is what makes claims
// race-free: exactly one caller wins a fresh key, everyone else observes the
// winner's record.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository returns an IdempotencyRepository that uses the
// given pool.
func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Begin claims the key. created reports whether this caller won the claim;
// when false, existing describes the prior claim.
func (r *IdempotencyRepository) Begin(ctx context.Context, key string) (bool, *order.IdemRecord, error) {
	tag, err := r.pool.Exec(ctx, claimIdemKeySQL, key, order.IdemInProgress)
	if err != nil {
		return false, nil, fmt.Errorf("claiming idempotency key %q: %w", key, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil, nil
	}

	var rec order.IdemRecord
	err = r.pool.QueryRow(ctx, getIdemKeySQL, key).Scan(&rec.Key, &rec.Status, &rec.OrderID)
	if err != nil {
		return false, nil, fmt.Errorf("loading idempotency key %q: %w", key, err)
	}
	return false, &rec, nil
}

// Complete marks the key done and binds it to the placed order.
func (r *IdempotencyRepository) Complete(ctx context.Context, key, orderID string) error {
	_, err := r.pool.Exec(ctx, completeIdemKeySQL, key, order.IdemDone, orderID)
	if err != nil {
		return fmt.Errorf("completing idempotency key %q: %w", key, err)
	}
	return nil
}

// Fail marks the key failed with the reason for diagnostics.
func (r *IdempotencyRepository) Fail(ctx context.Context, key, reason string) error {
	_, err := r.pool.Exec(ctx, failIdemKeySQL, key, order.IdemFailed, reason)
	if err != nil {
		return fmt.Errorf("failing idempotency key %q: %w", key, err)
	}
	return nil
}
