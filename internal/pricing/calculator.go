// Package pricing computes order totals from cart lines, a discount and a tax rate.
package pricing

import (
	"fmt"
	"strings"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

const places = 2

var hundred = decimal.NewFromInt(100)

// Line is one priced cart line
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns unitPrice × quantity without rounding
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Discount describes how much to take off the subtotal
type Discount struct {
	Type  models.DiscountType
	Value decimal.Decimal
}

// NoDiscount is a zero fixed discount
var NoDiscount = Discount{Type: models.DiscountTypeFixed}

// Totals are the priced amounts, each rounded to two decimals.
// Total always equals Subtotal - Discount + Tax.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Calculate prices lines. Out-of-range inputs are clamped, so it never fails.
func Calculate(lines []Line, discount Discount, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal())
	}
	subtotal = clampMin(subtotal, decimal.Zero).Round(places)

	var off decimal.Decimal
	switch discount.Type {
	case models.DiscountTypePercentage:
		off = subtotal.Mul(discount.Value).Div(hundred)
	default:
		off = discount.Value
	}
	off = clamp(off, decimal.Zero, subtotal).Round(places)

	taxable := subtotal.Sub(off)
	tax := taxable.Mul(clampMin(taxRate, decimal.Zero)).Div(hundred).Round(places)

	total := clampMin(subtotal.Sub(off).Add(tax), decimal.Zero)

	return Totals{
		Subtotal: subtotal,
		Discount: off,
		Tax:      tax,
		Total:    total,
	}
}

// ParseDiscountType maps request input to a discount type. Empty means fixed.
func ParseDiscountType(s string) (models.DiscountType, error) {
	switch models.DiscountType(strings.ToLower(strings.TrimSpace(s))) {
	case "", models.DiscountTypeFixed:
		return models.DiscountTypeFixed, nil
	case models.DiscountTypePercentage:
		return models.DiscountTypePercentage, nil
	}
	return "", models.NewValidationError("discount_type", fmt.Sprintf("unknown value %q", s))
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

func clampMin(d, lo decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	return d
}
