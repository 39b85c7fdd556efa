package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cakekart/checkout-engine/internal/domain/checkout"
	"github.com/cakekart/checkout-engine/internal/domain/coupon"
)

type memoryRepo struct {
	sessions map[string]*Session
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]*Session)}
}

func (m *memoryRepo) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryRepo) Save(_ context.Context, s *Session) error {
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

// minOrderValidator approves a single code with a fixed discount whenever the
// subtotal meets the minimum order value.
type minOrderValidator struct {
	code     string
	minOrder decimal.Decimal
	amount   decimal.Decimal
}

func (v *minOrderValidator) Validate(_ context.Context, code, _ string, subtotal decimal.Decimal) (*coupon.Discount, error) {
	if code != v.code {
		return nil, coupon.ErrInvalidCode
	}
	if subtotal.LessThan(v.minOrder) {
		return nil, &coupon.BelowMinimumError{MinOrderValue: v.minOrder, Subtotal: subtotal}
	}
	return &coupon.Discount{Code: code, Amount: v.amount}, nil
}

func TestService_ApplyCouponReplacesPrior(t *testing.T) {
	svc := NewService(newMemoryRepo(), &minOrderValidator{
		code:   "SAVE100",
		amount: dec(100),
	})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "s1", Item{ProductID: "p1", UnitPrice: dec(600), Quantity: 1})
	require.NoError(t, err)

	sess, err := svc.ApplyCoupon(ctx, "s1", "SAVE100")
	require.NoError(t, err)
	require.NotNil(t, sess.Coupon)
	assert.True(t, sess.Coupon.Amount.Equal(dec(100)))
	assert.True(t, sess.Coupon.Subtotal.Equal(dec(600)))

	// Re-applying attaches exactly one coupon; it never stacks.
	sess, err = svc.ApplyCoupon(ctx, "s1", "SAVE100")
	require.NoError(t, err)
	require.NotNil(t, sess.Coupon)
	assert.True(t, sess.CouponDiscount().Equal(dec(100)))
}

func TestService_CouponDroppedWhenSubtotalFallsBelowMinimum(t *testing.T) {
	svc := NewService(newMemoryRepo(), &minOrderValidator{
		code:     "SAVE100",
		minOrder: dec(500),
		amount:   dec(100),
	})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "s1", Item{ProductID: "p1", UnitPrice: dec(400), Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "s1", Item{ProductID: "p2", UnitPrice: dec(200), Quantity: 1})
	require.NoError(t, err)

	sess, err := svc.ApplyCoupon(ctx, "s1", "SAVE100")
	require.NoError(t, err)
	require.NotNil(t, sess.Coupon)

	// Removing an item drops the subtotal to 400, below the 500 minimum:
	// the coupon must be invalidated without manual removal.
	sess, err = svc.RemoveItem(ctx, "s1", "p2")
	require.NoError(t, err)
	assert.Nil(t, sess.Coupon)
	assert.True(t, sess.CouponDiscount().IsZero())
}

func TestService_ApplyCouponBelowMinimumFails(t *testing.T) {
	svc := NewService(newMemoryRepo(), &minOrderValidator{
		code:     "SAVE100",
		minOrder: dec(500),
		amount:   dec(100),
	})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "s1", Item{ProductID: "p1", UnitPrice: dec(499), Quantity: 1})
	require.NoError(t, err)

	_, err = svc.ApplyCoupon(ctx, "s1", "SAVE100")
	var below *coupon.BelowMinimumError
	require.ErrorAs(t, err, &below)
}

func TestService_SubmitAddressEmptyCart(t *testing.T) {
	svc := NewService(newMemoryRepo(), &minOrderValidator{})

	_, err := svc.SubmitAddress(context.Background(), "s1", checkout.Address{})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestService_CheckoutFlowPersistsAcrossLoads(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &minOrderValidator{})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "s1", Item{ProductID: "p1", UnitPrice: dec(700), Quantity: 1})
	require.NoError(t, err)

	addr := checkout.Address{
		FullName:     "Asha Nair",
		Phone:        "9876543210",
		AddressLine1: "14 Rose Garden Lane",
		City:         "Kochi",
		State:        "Kerala",
		Pincode:      "682001",
	}
	sess, err := svc.SubmitAddress(ctx, "s1", addr)
	require.NoError(t, err)
	assert.Equal(t, checkout.StepPayment, sess.Checkout.CurrentStep())

	// A new load sees the advanced step and the captured address.
	sess, err = svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, checkout.StepPayment, sess.Checkout.CurrentStep())
	require.NotNil(t, sess.Checkout.Address)
	assert.Equal(t, "682001", sess.Checkout.Address.Pincode)

	// Back navigation preserves the address.
	sess, err = svc.Back(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, checkout.StepAddress, sess.Checkout.CurrentStep())
	assert.Equal(t, "Asha Nair", sess.Checkout.Address.FullName)
}

func TestService_InvalidAddressKeptForCorrection(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &minOrderValidator{})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "s1", Item{ProductID: "p1", UnitPrice: dec(700), Quantity: 1})
	require.NoError(t, err)

	bad := checkout.Address{FullName: "Asha Nair", Phone: "12345"}
	_, err = svc.SubmitAddress(ctx, "s1", bad)
	var ve *checkout.ValidationError
	require.ErrorAs(t, err, &ve)

	sess, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, checkout.StepAddress, sess.Checkout.CurrentStep())
	require.NotNil(t, sess.Checkout.Address)
	assert.Equal(t, "Asha Nair", sess.Checkout.Address.FullName)
}
