package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount the rule grants on the given subtotal.
// Eligibility (expiry, minimum order, usage limits) must already have been
// checked; Apply only does the arithmetic.
func Apply(rule *Rule, subtotal decimal.Decimal) (Discount, error) {
	switch rule.DiscountType {
	case DiscountPercentage:
		return applyPercentage(rule, subtotal), nil
	case DiscountFixed:
		return applyFixed(rule, subtotal), nil
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}
}

func applyPercentage(rule *Rule, subtotal decimal.Decimal) Discount {
	amount := subtotal.Mul(rule.Value).Div(hundred)
	if rule.MaxDiscountCap.IsPositive() && amount.GreaterThan(rule.MaxDiscountCap) {
		amount = rule.MaxDiscountCap
	}
	amount = clamp(amount, subtotal).Round(2)

	return Discount{
		Code:        rule.Code,
		Amount:      amount,
		Description: rule.Description,
	}
}

func applyFixed(rule *Rule, subtotal decimal.Decimal) Discount {
	amount := decimal.Min(rule.Value, subtotal)
	amount = clamp(amount, subtotal).Round(2)

	return Discount{
		Code:        rule.Code,
		Amount:      amount,
		Description: rule.Description,
	}
}

// clamp bounds the discount to [0, subtotal] so totals never go negative.
func clamp(amount, subtotal decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}
