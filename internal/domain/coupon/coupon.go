package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// UsagePolicy controls the scope in which coupon usage limits are counted.
type UsagePolicy string

const (
	// UsageGlobal counts redemptions across all users against one counter.
	UsageGlobal UsagePolicy = "global"
	// UsagePerUser counts redemptions separately per user/session scope.
	UsagePerUser UsagePolicy = "per_user"
)

var (
	// ErrInvalidCode is returned when a coupon code is not found.
	ErrInvalidCode = errors.New("invalid coupon code")
	// ErrExpired is returned when a coupon is outside its valid time window.
	ErrExpired = errors.New("coupon expired")
	// ErrLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrLimitReached = errors.New("coupon usage limit reached")
)

// BelowMinimumError indicates the cart subtotal does not meet the coupon's
// minimum order value. The message states the shortfall.
type BelowMinimumError struct {
	MinOrderValue decimal.Decimal
	Subtotal      decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	shortfall := e.MinOrderValue.Sub(e.Subtotal)
	return "add " + shortfall.StringFixed(2) + " more to use this coupon (minimum order " +
		e.MinOrderValue.StringFixed(2) + ")"
}

// Rule defines a coupon's discount behaviour and eligibility constraints.
type Rule struct {
	Code          string
	Description   string
	DiscountType  DiscountType
	Value         decimal.Decimal
	MinOrderValue decimal.Decimal
	// MaxDiscountCap bounds percentage discounts. Zero means uncapped.
	MaxDiscountCap decimal.Decimal
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	// MaxUses limits redemptions within the configured usage scope.
	// Zero means unlimited.
	MaxUses int
}

// Discount holds the computed discount amount for an applied coupon.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Repository provides lookup and redemption accounting for coupon rules.
// Uses reports the redemption count for the given scope key; the scope key is
// empty under the global usage policy and a user/session identifier under the
// per-user policy.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	Uses(ctx context.Context, code, scopeKey string) (int, error)
	RecordUse(ctx context.Context, code, scopeKey string) error
}
