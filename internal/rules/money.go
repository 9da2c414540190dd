// internal/rules/money.go
package rules

import "github.com/shopspring/decimal"

/*
 * Monetary arithmetic.
 *
 * All amounts are decimal.Decimal. Leaves resolve unrounded; rounding to
 * whole rupees happens only at subtotal, discount, GST and add-on
 * boundaries. decimal.Round rounds half away from zero, which is the rule
 * for every monetary value here (no banker's rounding).
 */

var hundred = decimal.NewFromInt(100)

// roundRupees rounds half away from zero to a whole rupee.
func roundRupees(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// percentOf returns base * pct / 100, unrounded.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// years converts a tenure to a decimal multiplier.
func years(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// sumAmounts folds line item amounts.
func sumAmounts(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}
