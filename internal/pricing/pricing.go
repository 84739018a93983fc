// Package pricing applies discounts to order subtotals and converts decimal
// totals to the integer minor-currency units the payment gateway expects.
package pricing

import (
	"github.com/shopspring/decimal"
)

// DiscountKind discriminates how a discount value is interpreted.
type DiscountKind string

const (
	DiscountKindPercentage  DiscountKind = "percentage"
	DiscountKindFixedAmount DiscountKind = "fixed_amount"
)

// Discount is the pricing input for a single discount: at most one applies
// per order.
type Discount struct {
	Kind  DiscountKind
	Value decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)

	// DefaultMinChargeable matches the payment processor's historical floor
	// of 0.50 currency units.
	DefaultMinChargeable = decimal.New(50, -2)
)

// Calculator applies discounts and enforces the minimum chargeable floor.
type Calculator struct {
	minChargeable decimal.Decimal
}

func NewCalculator(minChargeable decimal.Decimal) Calculator {
	return Calculator{minChargeable: minChargeable}
}

// Apply returns the payable total and the amount saved after applying the
// discount to subtotal. A nil discount passes the subtotal through unchanged.
//
// Whatever the discount kind, a final total at or below the minimum
// chargeable amount is forced to zero with the whole subtotal recorded as
// saved. The comparison is deliberately non-strict: the processor rejects
// charges at the floor as well as below it, so the business rule is to give
// the remainder away rather than fail the charge.
func (c Calculator) Apply(subtotal decimal.Decimal, discount *Discount) (total, saved decimal.Decimal) {
	if discount == nil {
		return subtotal, decimal.Zero
	}

	switch discount.Kind {
	case DiscountKindPercentage:
		saved = subtotal.Mul(discount.Value).Div(hundred)
		total = subtotal.Sub(saved)
	case DiscountKindFixedAmount:
		total = subtotal.Sub(discount.Value)
		saved = decimal.Min(subtotal, discount.Value)
	default:
		total = subtotal
		saved = decimal.Zero
	}

	if total.LessThanOrEqual(c.minChargeable) {
		return decimal.Zero, subtotal
	}
	return total, saved
}

// MinorUnits converts a decimal amount to integer minor-currency units
// (cents) using ceiling rounding, so a fractional remainder can never
// undercharge.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Ceil().IntPart()
}
