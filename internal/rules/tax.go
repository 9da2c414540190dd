// internal/rules/tax.go
package rules

import "github.com/shopspring/decimal"

/*
 * Tax and rounding layer.
 *
 * GST is applied once to the mandatory base (od_total + tp_total) and
 * independently to each add-on after its own tenure scaling and rounding.
 * Summing rounded add-on inclusives is not the same as rounding the sum of
 * their bases; the per-add-on figures are the ones a customer is charged.
 */

// taxed is a base amount with its GST.
type taxed struct {
	base      decimal.Decimal
	gst       decimal.Decimal
	inclusive decimal.Decimal
}

// applyGST rounds the GST on an already rounded base.
func applyGST(base, gstPct decimal.Decimal) taxed {
	gst := roundRupees(percentOf(base, gstPct))
	return taxed{base: base, gst: gst, inclusive: base.Add(gst)}
}

// priceAddon scales a per-year add-on amount by tenure, rounds it and
// applies GST.
func priceAddon(amount decimal.Decimal, tenure int, gstPct decimal.Decimal) taxed {
	return applyGST(roundRupees(amount.Mul(years(tenure))), gstPct)
}
