package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/cakekart/checkout-engine/internal/domain/checkout"
	"github.com/cakekart/checkout-engine/internal/domain/coupon"
)

// ErrEmptyCart is returned when checkout is attempted on a cart with no items.
var ErrEmptyCart = errors.New("cart is empty")

// Service coordinates session mutations with coupon re-validation. Every
// subtotal change re-checks the applied coupon, so a coupon whose minimum
// order value is no longer met is dropped without manual removal.
type Service struct {
	sessions Repository
	coupons  coupon.Validator
}

// NewService creates a cart Service.
func NewService(sessions Repository, coupons coupon.Validator) *Service {
	return &Service{sessions: sessions, coupons: coupons}
}

// Get loads a session, creating an empty one if the ID is unknown.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return NewSession(id), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	return sess, nil
}

// AddItem merges the item into the session and persists it.
func (s *Service) AddItem(ctx context.Context, id string, item Item) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) { sess.AddItem(item) })
}

// UpdateQuantity sets a line quantity (zero or less removes the line).
func (s *Service) UpdateQuantity(ctx context.Context, id, productID string, qty int) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) { sess.UpdateQuantity(productID, qty) })
}

// RemoveItem removes a line from the session.
func (s *Service) RemoveItem(ctx context.Context, id, productID string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) { sess.RemoveItem(productID) })
}

// Clear empties the session.
func (s *Service) Clear(ctx context.Context, id string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) { sess.Clear() })
}

// ApplyCoupon validates the code against the current subtotal and attaches
// it to the session, replacing any previously applied coupon.
func (s *Service) ApplyCoupon(ctx context.Context, id, code string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d, err := s.coupons.Validate(ctx, code, id, sess.Subtotal())
	if err != nil {
		return nil, err
	}

	sess.Coupon = &AppliedCoupon{
		Code:        d.Code,
		Description: d.Description,
		Amount:      d.Amount,
		Subtotal:    sess.Subtotal(),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	return sess, nil
}

// RemoveCoupon detaches the applied coupon unconditionally.
func (s *Service) RemoveCoupon(ctx context.Context, id string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) { sess.Coupon = nil })
}

// SubmitAddress runs the address-step guard and advances the checkout flow.
// Checkout is refused outright on an empty cart.
func (s *Service) SubmitAddress(ctx context.Context, id string, addr checkout.Address) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.IsEmpty() {
		return nil, ErrEmptyCart
	}

	stepErr := sess.Checkout.SubmitAddress(addr)
	// Persist even on guard failure so corrected-but-rejected values survive
	// navigation, then surface the validation error.
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	if stepErr != nil {
		return nil, stepErr
	}
	return sess, nil
}

// Back returns the checkout flow to the address step.
func (s *Service) Back(ctx context.Context, id string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) { sess.Checkout.Back() })
}

// mutate loads the session, applies fn, re-validates any applied coupon
// against the resulting subtotal, and persists.
func (s *Service) mutate(ctx context.Context, id string, fn func(*Session)) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fn(sess)
	s.revalidateCoupon(ctx, sess)

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	return sess, nil
}

// revalidateCoupon re-runs coupon validation against the current subtotal.
// A coupon that no longer qualifies is dropped; one that still qualifies has
// its discount amount refreshed.
func (s *Service) revalidateCoupon(ctx context.Context, sess *Session) {
	if sess.Coupon == nil {
		return
	}

	d, err := s.coupons.Validate(ctx, sess.Coupon.Code, sess.ID, sess.Subtotal())
	if err != nil {
		sess.Coupon = nil
		return
	}
	sess.Coupon.Amount = d.Amount
	sess.Coupon.Subtotal = sess.Subtotal()
}
