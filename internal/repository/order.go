package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cakekart/checkout-engine/internal/domain/checkout"
	"github.com/cakekart/checkout-engine/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, items, subtotal,
		coupon_discount, coupon_code, delivery_fee, total, payment_method,
		status, shipping_address, demo_payment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getOrderSQL = `SELECT id, order_number, items, subtotal, coupon_discount,
		coupon_code, delivery_fee, total, payment_method, status,
		shipping_address, demo_payment, created_at
		FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, order_number, items, subtotal, coupon_discount,
		coupon_code, delivery_fee, total, payment_method, status,
		shipping_address, demo_payment, created_at
		FROM orders ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders SET status = $3
		WHERE id = $1 AND status = $2`

	getOrderStatusSQL = `SELECT status FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items and
// the shipping address are immutable snapshots, stored as JSONB.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, itemsJSON, o.Subtotal,
		o.CouponDiscount, o.CouponCode, o.DeliveryFee, o.Total,
		string(o.PaymentMethod), string(o.Status), addressJSON,
		o.DemoPayment, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get loads a single order. Returns order.ErrNotFound when absent.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("loading order %q: %w", id, err)
	}
	return &o, nil
}

// List returns all orders, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves the order from one status to another. The update is
// conditional on the current status, so two conflicting transitions cannot
// both win. On a miss it reports order.ErrNotFound for an absent order and a
// LifecycleError carrying the actual status otherwise.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, getOrderStatusSQL, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("checking status of order %q: %w", id, err)
	}
	return &order.LifecycleError{From: order.Status(current), To: to}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		addressJSON   []byte
		paymentMethod string
		status        string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &itemsJSON, &o.Subtotal, &o.CouponDiscount,
		&o.CouponCode, &o.DeliveryFee, &o.Total, &paymentMethod, &status,
		&addressJSON, &o.DemoPayment, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("decoding order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("decoding shipping address: %w", err)
	}
	o.PaymentMethod = checkout.PaymentMethod(paymentMethod)
	o.Status = order.Status(status)
	return o, nil
}
