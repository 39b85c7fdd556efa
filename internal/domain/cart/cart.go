// Package cart holds the server-side cart session: line items, the applied
// coupon, and the checkout flow state. The session is the single source of
// truth for pricing inputs; it is persisted through Repository so a cart
// survives reloads and navigation.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/cakekart/checkout-engine/internal/domain/checkout"
)

// ErrSessionNotFound is returned when no cart session exists for an ID.
var ErrSessionNotFound = errors.New("cart session not found")

// Item is a single cart line. DiscountPrice, when set, is the price actually
// charged; UnitPrice is the listed price.
type Item struct {
	ProductID     string           `json:"productId"`
	Name          string           `json:"name"`
	UnitPrice     decimal.Decimal  `json:"unitPrice"`
	DiscountPrice *decimal.Decimal `json:"discountPrice,omitempty"`
	Quantity      int              `json:"quantity"`
	WeightLabel   string           `json:"weightLabel,omitempty"`
}

// EffectivePrice returns the price a single unit is charged at.
func (i Item) EffectivePrice() decimal.Decimal {
	if i.DiscountPrice != nil {
		return *i.DiscountPrice
	}
	return i.UnitPrice
}

// AppliedCoupon records the coupon attached to a session together with the
// subtotal it was last validated against. At most one coupon is attached at
// a time; applying another replaces it.
type AppliedCoupon struct {
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Session is a durable cart session. All mutations go through its methods;
// invalid quantities are clamped rather than rejected.
type Session struct {
	ID     string         `json:"id"`
	Items  []Item         `json:"items"`
	Coupon *AppliedCoupon `json:"coupon,omitempty"`
	// PendingOrderID references the pending online order opened from this
	// session, if any, so an abandoned payment attempt can be resumed
	// instead of snapshotting a duplicate order.
	PendingOrderID string        `json:"pendingOrderId,omitempty"`
	Checkout       checkout.Flow `json:"checkout"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// NewSession returns an empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// AddItem adds the item to the session, merging with an existing line for the
// same product by incrementing its quantity. Quantities below 1 are clamped
// to 1.
func (s *Session) AddItem(item Item) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	for i := range s.Items {
		if s.Items[i].ProductID == item.ProductID {
			s.Items[i].Quantity += item.Quantity
			return
		}
	}
	s.Items = append(s.Items, item)
}

// UpdateQuantity sets the quantity for a product line. A quantity of zero or
// less removes the line. Unknown products are ignored.
func (s *Session) UpdateQuantity(productID string, qty int) {
	if qty <= 0 {
		s.RemoveItem(productID)
		return
	}
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			s.Items[i].Quantity = qty
			return
		}
	}
}

// RemoveItem deletes the line for the given product, if present.
func (s *Session) RemoveItem(productID string) {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			s.Items = append(s.Items[:i], s.Items[i+1:]...)
			return
		}
	}
}

// Clear empties the cart, detaches any coupon, and resets the checkout flow.
func (s *Session) Clear() {
	s.Items = nil
	s.Coupon = nil
	s.PendingOrderID = ""
	s.Checkout.Reset()
}

// Subtotal is the sum of effective price times quantity across all lines.
func (s *Session) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range s.Items {
		line := item.EffectivePrice().Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// TotalItems is the sum of quantities across all lines.
func (s *Session) TotalItems() int {
	total := 0
	for _, item := range s.Items {
		total += item.Quantity
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (s *Session) IsEmpty() bool {
	return len(s.Items) == 0
}

// CouponDiscount returns the currently applied discount amount, or zero.
func (s *Session) CouponDiscount() decimal.Decimal {
	if s.Coupon == nil {
		return decimal.Zero
	}
	return s.Coupon.Amount
}

// Repository persists cart sessions. Get returns ErrSessionNotFound when the
// ID is unknown.
type Repository interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
