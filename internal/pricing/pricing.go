// Package pricing turns a sale subtotal into discount, VAT and grand total.
//
// The discount is taken off before VAT is charged, so VAT is levied on the
// discounted amount. Every derived amount is rounded half away from zero to
// two places, and the total is built from the rounded parts so that
// Total == Subtotal - DiscountAmount + VATAmount holds exactly.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept on money amounts.
const Places = 2

var (
	ErrNegativeSubtotal   = errors.New("subtotal must not be negative")
	ErrDiscountOutOfRange = errors.New("discount percentage must be between 0 and 100")
	ErrVATRateOutOfRange  = errors.New("vat rate must be between 0 and 1")
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	VATRate            decimal.Decimal `json:"vat_rate"`
	VATAmount          decimal.Decimal `json:"vat_amount"`
	Total              decimal.Decimal `json:"total"`
}

// ComputeTotals derives discount, VAT and total from a subtotal.
func ComputeTotals(subtotal, discountPercentage, vatRate decimal.Decimal) (Totals, error) {
	if subtotal.IsNegative() {
		return Totals{}, ErrNegativeSubtotal
	}
	if err := ValidateDiscount(discountPercentage); err != nil {
		return Totals{}, err
	}
	if err := ValidateVATRate(vatRate); err != nil {
		return Totals{}, err
	}

	subtotal = Round(subtotal)
	discount := Round(subtotal.Mul(discountPercentage).Div(hundred))
	net := subtotal.Sub(discount)
	vat := Round(net.Mul(vatRate))

	return Totals{
		Subtotal:           subtotal,
		DiscountPercentage: discountPercentage,
		DiscountAmount:     discount,
		VATRate:            vatRate,
		VATAmount:          vat,
		Total:              net.Add(vat),
	}, nil
}

// ValidateDiscount rejects percentages outside [0,100].
func ValidateDiscount(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return ErrDiscountOutOfRange
	}
	return nil
}

// ValidateVATRate rejects rates outside [0,1].
func ValidateVATRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return ErrVATRateOutOfRange
	}
	return nil
}

// LineTotal is unitPrice × quantity, rounded.
func LineTotal(unitPrice decimal.Decimal, quantity int64) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(quantity)))
}

// Round applies the package rounding policy.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}
