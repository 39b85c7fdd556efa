package order

import "github.com/shopspring/decimal"

// PricingConfig holds the delivery-fee knobs.
type PricingConfig struct {
	// FreeDeliveryThreshold is the subtotal at or above which delivery is
	// free.
	FreeDeliveryThreshold decimal.Decimal
	// DeliveryFee is the flat fee charged below the threshold.
	DeliveryFee decimal.Decimal
	Currency    string
}

// Quote is a full price breakdown for a cart.
type Quote struct {
	Subtotal       decimal.Decimal
	CouponDiscount decimal.Decimal
	DeliveryFee    decimal.Decimal
	Total          decimal.Decimal
}

// ComputeQuote derives the payable total. The discount is clamped to the
// subtotal so the total can never go negative, and delivery is free exactly
// when the subtotal reaches the threshold.
func ComputeQuote(cfg PricingConfig, subtotal, couponDiscount decimal.Decimal) Quote {
	if couponDiscount.IsNegative() {
		couponDiscount = decimal.Zero
	}
	if couponDiscount.GreaterThan(subtotal) {
		couponDiscount = subtotal
	}

	fee := cfg.DeliveryFee
	if subtotal.GreaterThanOrEqual(cfg.FreeDeliveryThreshold) {
		fee = decimal.Zero
	}

	total := subtotal.Sub(couponDiscount).Add(fee)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		Subtotal:       subtotal.Round(2),
		CouponDiscount: couponDiscount.Round(2),
		DeliveryFee:    fee.Round(2),
		Total:          total.Round(2),
	}
}
