// Package order owns order placement, pricing, and the status lifecycle.
// An order's items are an immutable snapshot of the cart at placement time;
// after creation only the status ever changes, and only through the
// transitions defined in status.go.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/cakekart/checkout-engine/internal/domain/checkout"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Item is a priced order line, captured from the cart at placement. Price is
// the effective unit price the line was charged at.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Order is a placed customer order.
type Order struct {
	ID              string
	OrderNumber     string
	Items           []Item
	Subtotal        decimal.Decimal
	CouponDiscount  decimal.Decimal
	CouponCode      string
	DeliveryFee     decimal.Decimal
	Total           decimal.Decimal
	PaymentMethod   checkout.PaymentMethod
	Status          Status
	ShippingAddress checkout.Address
	// DemoPayment marks orders settled through the synthesized demo gateway;
	// reporting keeps them out of verified-payment figures.
	DemoPayment bool
	CreatedAt   time.Time
}

// Repository persists orders. UpdateStatus only succeeds when the stored
// status still equals from, which keeps concurrent transitions serialized.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}

// Idempotency entry states, mirrored in the idempotency_keys table.
const (
	IdemInProgress = "in_progress"
	IdemDone       = "done"
	IdemFailed     = "failed"
)

// IdemRecord is the stored outcome of a keyed placement attempt.
type IdemRecord struct {
	Key     string
	Status  string
	OrderID string
}

// IdempotencyStore dedupes order placement. Begin atomically claims the key:
// it reports created=true when this caller owns the attempt, otherwise it
// returns the existing record so the caller can replay or refuse.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (created bool, existing *IdemRecord, err error)
	Complete(ctx context.Context, key, orderID string) error
	Fail(ctx context.Context, key, reason string) error
}
