package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cakekart/checkout-engine/internal/domain/payment"
)

const (
	createPaymentSQL = `INSERT INTO payment_records (id, order_id,
		gateway_order_id, demo, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	getPaymentByGatewayOrderSQL = `SELECT id, order_id, gateway_order_id,
		gateway_payment_id, signature, outcome, verified, demo, created_at, verified_at
		FROM payment_records WHERE gateway_order_id = $1`

	getLatestPaymentByOrderSQL = `SELECT id, order_id, gateway_order_id,
		gateway_payment_id, signature, outcome, verified, demo, created_at, verified_at
		FROM payment_records WHERE order_id = $1
		ORDER BY created_at DESC LIMIT 1`

	markPaymentVerifiedSQL = `UPDATE payment_records
		SET gateway_payment_id = $2, signature = $3, outcome = 'authorized',
			verified = TRUE, verified_at = $4
		WHERE id = $1`

	recordPaymentOutcomeSQL = `UPDATE payment_records SET outcome = $2
		WHERE id = $1 AND NOT verified`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a fresh payment attempt record.
func (r *PaymentRepository) Create(ctx context.Context, rec *payment.Record) error {
	_, err := r.pool.Exec(ctx, createPaymentSQL,
		rec.ID, rec.OrderID, rec.GatewayOrderID, rec.Demo, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment record %q: %w", rec.ID, err)
	}
	return nil
}

// FindByGatewayOrderID looks up the record tied to a gateway order reference.
func (r *PaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Record, error) {
	rows, err := r.pool.Query(ctx, getPaymentByGatewayOrderSQL, gatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("finding payment by gateway order %q: %w", gatewayOrderID, err)
	}
	return collectPayment(rows)
}

// FindLatestByOrderID returns the most recent payment attempt for an order.
func (r *PaymentRepository) FindLatestByOrderID(ctx context.Context, orderID string) (*payment.Record, error) {
	rows, err := r.pool.Query(ctx, getLatestPaymentByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("finding latest payment for order %q: %w", orderID, err)
	}
	return collectPayment(rows)
}

// MarkVerified records a successful server-side verification. The record is
// immutable afterwards.
func (r *PaymentRepository) MarkVerified(ctx context.Context, id string, c payment.Completion, verifiedAt time.Time) error {
	_, err := r.pool.Exec(ctx, markPaymentVerifiedSQL,
		id, c.GatewayPaymentID, c.Signature, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("marking payment %q verified: %w", id, err)
	}
	return nil
}

// RecordOutcome stores a terminal non-success outcome. Verified records are
// never downgraded.
func (r *PaymentRepository) RecordOutcome(ctx context.Context, id string, outcome payment.Outcome) error {
	_, err := r.pool.Exec(ctx, recordPaymentOutcomeSQL, id, string(outcome))
	if err != nil {
		return fmt.Errorf("recording outcome for payment %q: %w", id, err)
	}
	return nil
}

func collectPayment(rows pgx.Rows) (*payment.Record, error) {
	rec, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scanning payment record: %w", err)
	}
	return &rec, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Record, error) {
	var (
		rec     payment.Record
		outcome *string
	)
	err := row.Scan(
		&rec.ID, &rec.OrderID, &rec.GatewayOrderID, &rec.GatewayPaymentID,
		&rec.Signature, &outcome, &rec.Verified, &rec.Demo,
		&rec.CreatedAt, &rec.VerifiedAt,
	)
	if outcome != nil {
		rec.Outcome = payment.Outcome(*outcome)
	}
	return rec, err
}
