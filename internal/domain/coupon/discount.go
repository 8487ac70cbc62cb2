package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeDiscount returns the amount coupon c subtracts from a cart worth
// cartValue.
//
// FLAT coupons grant their value as-is, even above the cart value. PERCENT
// coupons grant the percentage of cartValue, clamped to MaxDiscountAmount
// when that cap is positive. Any other discount type grants nothing.
func ComputeDiscount(c Coupon, cartValue decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case DiscountFlat:
		return c.DiscountValue
	case DiscountPercent:
		amount := c.DiscountValue.Div(hundred).Mul(cartValue)
		if c.MaxDiscountAmount.IsPositive() {
			amount = decimal.Min(amount, c.MaxDiscountAmount)
		}
		return amount
	default:
		return decimal.Zero
	}
}
