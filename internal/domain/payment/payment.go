// Package payment integrates the hosted payment gateway used for online
// orders. The gateway reserves an amount (a gateway order), collects the
// payment in its hosted UI, and reports completion back with a signature that
// must be verified server-side before any order is confirmed.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrVerificationFailed is returned when a reported payment completion does
// not carry a valid signature. The attempt is dead; the order stays
// unconfirmed.
var ErrVerificationFailed = errors.New("payment signature verification failed")

// ErrRecordNotFound is returned when no payment record matches a lookup.
var ErrRecordNotFound = errors.New("payment record not found")

// GatewayError indicates the gateway could not be reached or rejected the
// request. The attempt failed before any payment was collected and may be
// retried.
type GatewayError struct {
	Op     string
	Reason string
}

func (e *GatewayError) Error() string {
	return "payment gateway: " + e.Op + ": " + e.Reason
}

// Outcome classifies how a payment attempt ended.
type Outcome string

const (
	// OutcomeAuthorized means the gateway collected and signed the payment.
	OutcomeAuthorized Outcome = "authorized"
	// OutcomeCancelled means the customer abandoned the hosted UI. Terminal
	// for the attempt; a retry opens a fresh gateway order.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed means the gateway declined or errored.
	OutcomeFailed Outcome = "failed"
)

// CreateParams describes the amount to reserve with the gateway.
type CreateParams struct {
	Amount   decimal.Decimal
	Currency string
	// Receipt is the merchant-side reference (the order number).
	Receipt string
}

// GatewayOrder is the gateway's reservation for a payment attempt.
type GatewayOrder struct {
	ID string
	// ClientKey is the publishable key the storefront needs to open the
	// hosted payment UI.
	ClientKey string
	Amount    decimal.Decimal
	Currency  string
}

// Completion is what the hosted UI reports after a payment attempt.
type Completion struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Gateway creates gateway orders and verifies reported completions.
// Implementations must verify signatures against the merchant secret;
// client-reported success is never trusted on its own.
type Gateway interface {
	CreateOrder(ctx context.Context, p CreateParams) (*GatewayOrder, error)
	Verify(c Completion) error
	// ClientKey is the publishable key the storefront uses to open the
	// hosted UI.
	ClientKey() string
	// Demo reports whether results are synthesized rather than settled by a
	// real gateway. Demo results are flagged on their payment records so
	// reporting never mistakes them for verified payments.
	Demo() bool
}

// Record tracks one online payment attempt. It becomes immutable once
// verified.
type Record struct {
	ID               string
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Outcome          Outcome
	Verified         bool
	Demo             bool
	CreatedAt        time.Time
	VerifiedAt       *time.Time
}

// Repository persists payment records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Record, error)
	FindLatestByOrderID(ctx context.Context, orderID string) (*Record, error)
	MarkVerified(ctx context.Context, id string, c Completion, verifiedAt time.Time) error
	RecordOutcome(ctx context.Context, id string, outcome Outcome) error
}
