package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cakekart/checkout-engine/internal/domain/cart"
	"github.com/cakekart/checkout-engine/internal/domain/checkout"
	"github.com/cakekart/checkout-engine/internal/domain/coupon"
	"github.com/cakekart/checkout-engine/internal/domain/payment"
)

var (
	// ErrCheckoutIncomplete is returned when placement is attempted before
	// the checkout flow captured a valid address.
	ErrCheckoutIncomplete = errors.New("checkout address not captured")
	// ErrDuplicateInFlight is returned when a placement with the same
	// idempotency key is still being processed.
	ErrDuplicateInFlight = errors.New("a placement with this idempotency key is in progress")
	// ErrAttemptFailed is returned when the idempotency key belongs to a
	// placement attempt that already failed; the client must retry with a
	// fresh key.
	ErrAttemptFailed = errors.New("previous attempt with this idempotency key failed")
)

// PaymentIntent is the result of opening an online payment: the pending order
// plus everything the storefront needs to launch the hosted gateway UI.
type PaymentIntent struct {
	Order          *Order
	GatewayOrderID string
	ClientKey      string
	Currency       string
}

// Service orchestrates order placement, payment verification, and status
// transitions. It is the only writer of order state.
type Service struct {
	orders   Repository
	payments payment.Repository
	gateway  payment.Gateway
	coupons  coupon.Redeemer
	carts    cart.Repository
	idem     IdempotencyStore
	pricing  PricingConfig

	now         func() time.Time
	newID       func() string
	onPlacement func(ctx context.Context, method checkout.PaymentMethod)
}

// NewService creates an order Service with the required dependencies.
func NewService(
	orders Repository,
	payments payment.Repository,
	gateway payment.Gateway,
	coupons coupon.Redeemer,
	carts cart.Repository,
	idem IdempotencyStore,
	pricing PricingConfig,
) *Service {
	return &Service{
		orders:   orders,
		payments: payments,
		gateway:  gateway,
		coupons:  coupons,
		carts:    carts,
		idem:     idem,
		pricing:  pricing,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// OnPlacement registers a callback fired when an order becomes durably
// placed: at COD placement and at online payment confirmation. Used for the
// placement metrics.
func (s *Service) OnPlacement(fn func(ctx context.Context, method checkout.PaymentMethod)) {
	s.onPlacement = fn
}

func (s *Service) notifyPlacement(ctx context.Context, method checkout.PaymentMethod) {
	if s.onPlacement != nil {
		s.onPlacement(ctx, method)
	}
}

// Quote prices the session as it stands: live subtotal, re-validated coupon,
// delivery fee. This is also the pricing used at placement, so what the
// customer sees is what they are charged.
func (s *Service) Quote(ctx context.Context, sess *cart.Session) Quote {
	return ComputeQuote(s.pricing, sess.Subtotal(), s.discountFor(ctx, sess))
}

// discountFor re-validates the applied coupon against the current subtotal.
// A coupon that no longer qualifies contributes nothing.
func (s *Service) discountFor(ctx context.Context, sess *cart.Session) decimal.Decimal {
	if sess.Coupon == nil {
		return decimal.Zero
	}
	d, err := s.coupons.Validate(ctx, sess.Coupon.Code, sess.ID, sess.Subtotal())
	if err != nil {
		return decimal.Zero
	}
	return d.Amount
}

// PlaceCOD creates a cash-on-delivery order from the session. The order
// starts pending and waits for explicit confirmation; no gateway interaction
// and no payment record. idemKey dedupes retried submissions.
func (s *Service) PlaceCOD(ctx context.Context, sessionID, idemKey string) (*Order, error) {
	if replay, err := s.claimKey(ctx, idemKey); replay != nil || err != nil {
		return replay, err
	}

	o, sess, err := s.buildOrder(ctx, sessionID, checkout.MethodCOD)
	if err != nil {
		s.failKey(ctx, idemKey, err)
		return nil, err
	}

	if err := s.orders.Create(ctx, o); err != nil {
		s.failKey(ctx, idemKey, err)
		return nil, errors.Wrap(err, "create order")
	}
	if err := s.idem.Complete(ctx, idemKey, o.ID); err != nil {
		return nil, errors.Wrap(err, "complete idempotency key")
	}

	// COD placement is a terminal success for the cart session.
	s.clearSession(ctx, sess)
	s.notifyPlacement(ctx, checkout.MethodCOD)
	return o, nil
}

// BeginOnlinePayment creates the pending order and opens a gateway order for
// it. The order is only confirmed later, by VerifyPayment. Retrying with the
// same idempotency key replays the first attempt instead of creating a
// duplicate; retrying after a cancelled or failed attempt (fresh key) opens a
// fresh gateway order reference.
func (s *Service) BeginOnlinePayment(ctx context.Context, sessionID, idemKey string) (*PaymentIntent, error) {
	if replay, err := s.claimKey(ctx, idemKey); replay != nil || err != nil {
		if err != nil {
			return nil, err
		}
		return s.replayIntent(ctx, replay)
	}

	// An abandoned attempt left a pending online order on the session.
	// Resume it with a fresh gateway reference instead of snapshotting a
	// second order for the same purchase.
	if intent, err := s.resumePending(ctx, sessionID); err != nil {
		s.failKey(ctx, idemKey, err)
		return nil, err
	} else if intent != nil {
		if err := s.idem.Complete(ctx, idemKey, intent.Order.ID); err != nil {
			return nil, errors.Wrap(err, "complete idempotency key")
		}
		return intent, nil
	}

	o, sess, err := s.buildOrder(ctx, sessionID, checkout.MethodOnline)
	if err != nil {
		s.failKey(ctx, idemKey, err)
		return nil, err
	}

	if err := s.orders.Create(ctx, o); err != nil {
		s.failKey(ctx, idemKey, err)
		return nil, errors.Wrap(err, "create order")
	}

	// Remember the pending order on the session so a retry can resume it.
	// Best effort: losing the reference only costs the resume shortcut.
	sess.PendingOrderID = o.ID
	_ = s.carts.Save(ctx, sess)

	intent, err := s.openAttempt(ctx, o)
	if err != nil {
		s.failKey(ctx, idemKey, err)
		return nil, err
	}

	if err := s.idem.Complete(ctx, idemKey, o.ID); err != nil {
		return nil, errors.Wrap(err, "complete idempotency key")
	}
	return intent, nil
}

// resumePending returns an intent for the session's existing pending online
// order when the cart still prices to the same total, opening a fresh gateway
// reference for it. Returns (nil, nil) when there is nothing to resume.
func (s *Service) resumePending(ctx context.Context, sessionID string) (*PaymentIntent, error) {
	sess, err := s.carts.Get(ctx, sessionID)
	if err != nil || sess.PendingOrderID == "" {
		return nil, nil
	}
	o, err := s.orders.Get(ctx, sess.PendingOrderID)
	if err != nil || o.Status != StatusPending || o.PaymentMethod != checkout.MethodOnline {
		return nil, nil
	}
	// The cart may have changed since the order was snapshotted; a stale
	// snapshot must not be charged. Fall through to a fresh one.
	q := ComputeQuote(s.pricing, sess.Subtotal(), s.discountFor(ctx, sess))
	if !q.Total.Equal(o.Total) {
		return nil, nil
	}
	return s.openAttempt(ctx, o)
}

// openAttempt reserves the order's amount with the gateway and records the
// new payment attempt.
func (s *Service) openAttempt(ctx context.Context, o *Order) (*PaymentIntent, error) {
	gw, err := s.gateway.CreateOrder(ctx, payment.CreateParams{
		Amount:   o.Total,
		Currency: s.pricing.Currency,
		Receipt:  o.OrderNumber,
	})
	if err != nil {
		return nil, err
	}

	rec := &payment.Record{
		ID:             s.newID(),
		OrderID:        o.ID,
		GatewayOrderID: gw.ID,
		Demo:           s.gateway.Demo(),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.payments.Create(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "create payment record")
	}

	return &PaymentIntent{
		Order:          o,
		GatewayOrderID: gw.ID,
		ClientKey:      gw.ClientKey,
		Currency:       gw.Currency,
	}, nil
}

// VerifyPayment checks a reported completion server-side and, only when the
// signature is valid, confirms the pending order. sessionID, when known,
// identifies the cart session to clear on success.
func (s *Service) VerifyPayment(ctx context.Context, orderID, sessionID string, c payment.Completion) (*Order, error) {
	rec, err := s.payments.FindByGatewayOrderID(ctx, c.GatewayOrderID)
	if err != nil {
		return nil, errors.Wrap(err, "find payment record")
	}
	if rec.OrderID != orderID {
		return nil, payment.ErrVerificationFailed
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}

	// A replayed verification of an already-verified payment is a success.
	if rec.Verified {
		return o, nil
	}

	if err := s.gateway.Verify(c); err != nil {
		// Terminal for this attempt; the order stays unconfirmed.
		if outErr := s.payments.RecordOutcome(ctx, rec.ID, payment.OutcomeFailed); outErr != nil {
			return nil, errors.Wrap(outErr, "record failed outcome")
		}
		return nil, err
	}

	now := s.now().UTC()
	if err := s.payments.MarkVerified(ctx, rec.ID, c, now); err != nil {
		return nil, errors.Wrap(err, "mark payment verified")
	}

	if err := CheckTransition(o.Status, StatusConfirmed, ActorSystem); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, StatusConfirmed); err != nil {
		return nil, errors.Wrap(err, "confirm order")
	}
	o.Status = StatusConfirmed

	// Verification is the terminal success for the session.
	if sessionID != "" {
		if sess, err := s.carts.Get(ctx, sessionID); err == nil {
			s.clearSession(ctx, sess)
		}
	}
	s.notifyPlacement(ctx, checkout.MethodOnline)
	return o, nil
}

// CancelAttempt records that the customer abandoned the hosted UI for the
// given gateway order. The payment attempt is dead; the order remains
// pending and a retry must open a fresh gateway order.
func (s *Service) CancelAttempt(ctx context.Context, gatewayOrderID string) error {
	rec, err := s.payments.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return errors.Wrap(err, "find payment record")
	}
	if rec.Verified {
		return errors.New("payment already verified")
	}
	return s.payments.RecordOutcome(ctx, rec.ID, payment.OutcomeCancelled)
}

// Transition applies an actor-requested status change.
func (s *Service) Transition(ctx context.Context, id string, to Status, actor Actor) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(o.Status, to, actor); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to); err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	o.Status = to
	return o, nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns all orders, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// Stats summarizes orders for the admin dashboard. Revenue figures all go
// through CountsTowardRevenue; demo-gateway settlements are broken out so
// they are never mistaken for verified payments.
type Stats struct {
	TotalOrders     int
	ByStatus        map[Status]int
	RealizedRevenue decimal.Decimal
	DemoRevenue     decimal.Decimal
}

// Stats aggregates all orders into Stats.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	st := &Stats{
		ByStatus:        make(map[Status]int),
		RealizedRevenue: decimal.Zero,
		DemoRevenue:     decimal.Zero,
	}
	for _, o := range orders {
		st.TotalOrders++
		st.ByStatus[o.Status]++
		if !CountsTowardRevenue(o.Status) {
			continue
		}
		if o.DemoPayment {
			st.DemoRevenue = st.DemoRevenue.Add(o.Total)
			continue
		}
		st.RealizedRevenue = st.RealizedRevenue.Add(o.Total)
	}
	return st, nil
}

// claimKey reserves the idempotency key. It returns a non-nil order when the
// key belongs to a completed placement (replay), an error when the key is
// claimed but unusable, and (nil, nil) when the caller owns a fresh attempt.
func (s *Service) claimKey(ctx context.Context, idemKey string) (*Order, error) {
	created, existing, err := s.idem.Begin(ctx, idemKey)
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}
	if created {
		return nil, nil
	}

	switch existing.Status {
	case IdemDone:
		o, err := s.orders.Get(ctx, existing.OrderID)
		if err != nil {
			return nil, errors.Wrap(err, "load replayed order")
		}
		return o, nil
	case IdemInProgress:
		return nil, ErrDuplicateInFlight
	default:
		return nil, ErrAttemptFailed
	}
}

func (s *Service) failKey(ctx context.Context, idemKey string, cause error) {
	// Best effort; the original error is what the caller needs to see.
	_ = s.idem.Fail(ctx, idemKey, cause.Error())
}

// replayIntent rebuilds the PaymentIntent for a replayed online placement.
// When the latest attempt was cancelled or failed, its gateway reference is
// dead; a fresh attempt is opened for the same order instead of handing the
// client an unusable one.
func (s *Service) replayIntent(ctx context.Context, o *Order) (*PaymentIntent, error) {
	rec, err := s.payments.FindLatestByOrderID(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "find replayed payment record")
	}
	if rec.Outcome == payment.OutcomeCancelled || rec.Outcome == payment.OutcomeFailed {
		return s.openAttempt(ctx, o)
	}
	return &PaymentIntent{
		Order:          o,
		GatewayOrderID: rec.GatewayOrderID,
		ClientKey:      s.gateway.ClientKey(),
		Currency:       s.pricing.Currency,
	}, nil
}

// buildOrder snapshots the session into a new pending order, pricing it at
// this instant and redeeming the applied coupon.
func (s *Service) buildOrder(ctx context.Context, sessionID string, method checkout.PaymentMethod) (*Order, *cart.Session, error) {
	sess, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, cart.ErrSessionNotFound) {
			return nil, nil, cart.ErrEmptyCart
		}
		return nil, nil, errors.Wrap(err, "load session")
	}
	if sess.IsEmpty() {
		return nil, nil, cart.ErrEmptyCart
	}
	if sess.Checkout.Address == nil {
		return nil, nil, ErrCheckoutIncomplete
	}
	if err := checkout.ValidateAddress(*sess.Checkout.Address); err != nil {
		return nil, nil, err
	}
	// Placement is the payment-step submit: the flow must have advanced past
	// the address step, and the chosen method is recorded on it.
	if err := sess.Checkout.SelectPayment(method); err != nil {
		return nil, nil, err
	}

	subtotal := sess.Subtotal()
	discount := decimal.Zero
	couponCode := ""
	if sess.Coupon != nil {
		// Redeem against the live subtotal; a coupon that stopped
		// qualifying since it was applied contributes nothing.
		d, err := s.coupons.Redeem(ctx, sess.Coupon.Code, sess.ID, subtotal)
		switch {
		case err == nil:
			discount = d.Amount
			couponCode = d.Code
		case isEligibilityError(err):
			// Dropped silently, same as the cart's own re-validation.
		default:
			return nil, nil, errors.Wrap(err, "redeem coupon")
		}
	}

	q := ComputeQuote(s.pricing, subtotal, discount)
	now := s.now().UTC()
	id := s.newID()

	items := make([]Item, len(sess.Items))
	for i, it := range sess.Items {
		items[i] = Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.EffectivePrice(),
			Quantity:  it.Quantity,
		}
	}

	return &Order{
		ID:              id,
		OrderNumber:     orderNumber(now, id),
		Items:           items,
		Subtotal:        q.Subtotal,
		CouponDiscount:  q.CouponDiscount,
		CouponCode:      couponCode,
		DeliveryFee:     q.DeliveryFee,
		Total:           q.Total,
		PaymentMethod:   method,
		Status:          StatusPending,
		ShippingAddress: *sess.Checkout.Address,
		DemoPayment:     method == checkout.MethodOnline && s.gateway.Demo(),
		CreatedAt:       now,
	}, sess, nil
}

// isEligibilityError reports whether a coupon error is a business rule the
// placement should tolerate by dropping the discount, as opposed to an
// infrastructure failure.
func isEligibilityError(err error) bool {
	var below *coupon.BelowMinimumError
	return errors.Is(err, coupon.ErrInvalidCode) ||
		errors.Is(err, coupon.ErrExpired) ||
		errors.Is(err, coupon.ErrLimitReached) ||
		errors.As(err, &below)
}

func (s *Service) clearSession(ctx context.Context, sess *cart.Session) {
	sess.Clear()
	// Cart clearing is best effort after a terminal success; the order it
	// snapshotted is already durable.
	_ = s.carts.Save(ctx, sess)
}

// orderNumber derives the customer-facing reference: a sortable timestamp
// plus a short unique suffix.
func orderNumber(now time.Time, id string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "CK-" + now.Format("20060102150405") + "-" + suffix
}
