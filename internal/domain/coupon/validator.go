package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates a coupon code against a cart subtotal and returns the
// computed discount. scopeKey identifies the redeeming user/session; it is
// ignored under the global usage policy.
type Validator interface {
	Validate(ctx context.Context, code, scopeKey string, subtotal decimal.Decimal) (*Discount, error)
}

// Redeemer additionally records a redemption after a successful validation.
// Order placement goes through Redeem so usage limits are counted exactly
// when an order is created, not at apply-time preview.
type Redeemer interface {
	Validator
	Redeem(ctx context.Context, code, scopeKey string, subtotal decimal.Decimal) (*Discount, error)
}

// RepoValidator implements Validator by looking up coupon rules from a
// Repository and applying them via the Apply function. Validation rules run
// in a fixed order and the first failing rule wins: code exists, not expired,
// minimum order value met, usage limit not exhausted.
type RepoValidator struct {
	repo   Repository
	policy UsagePolicy
	now    func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository, policy UsagePolicy) *RepoValidator {
	if policy == "" {
		policy = UsageGlobal
	}
	return &RepoValidator{repo: repo, policy: policy, now: time.Now}
}

// Validate checks the coupon identified by code against the subtotal and
// returns the discount it grants. It does not record a redemption; usage is
// counted at order placement via Redeem.
func (v *RepoValidator) Validate(ctx context.Context, code, scopeKey string, subtotal decimal.Decimal) (*Discount, error) {
	rule, err := v.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := v.checkEligibility(ctx, rule, scopeKey, subtotal); err != nil {
		return nil, err
	}

	d, err := Apply(rule, subtotal)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Redeem re-validates the coupon against the subtotal at placement time and
// records the redemption in the configured usage scope.
func (v *RepoValidator) Redeem(ctx context.Context, code, scopeKey string, subtotal decimal.Decimal) (*Discount, error) {
	d, err := v.Validate(ctx, code, scopeKey, subtotal)
	if err != nil {
		return nil, err
	}
	if err := v.repo.RecordUse(ctx, code, v.scope(scopeKey)); err != nil {
		return nil, errors.Wrap(err, "record coupon use")
	}
	return d, nil
}

func (v *RepoValidator) lookup(ctx context.Context, code string) (*Rule, error) {
	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	return rule, nil
}

func (v *RepoValidator) checkEligibility(ctx context.Context, rule *Rule, scopeKey string, subtotal decimal.Decimal) error {
	now := v.now()

	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return ErrExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return ErrExpired
	}

	if subtotal.LessThan(rule.MinOrderValue) {
		return &BelowMinimumError{MinOrderValue: rule.MinOrderValue, Subtotal: subtotal}
	}

	if rule.MaxUses > 0 {
		uses, err := v.repo.Uses(ctx, rule.Code, v.scope(scopeKey))
		if err != nil {
			return errors.Wrap(err, "count coupon uses")
		}
		if uses >= rule.MaxUses {
			return ErrLimitReached
		}
	}
	return nil
}

func (v *RepoValidator) scope(scopeKey string) string {
	if v.policy == UsagePerUser {
		return scopeKey
	}
	return ""
}
