// internal/rules/discount.go
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Discount and NCB layer.
 *
 * Runs on the tenure-scaled OD gross, never per line, so a discount is
 * scaled exactly once:
 *
 *   od_gross = round(sum(od lines) * odTenure)
 *   ncb      = round(od_gross * ncb% / 100)
 *   discount = FLAT: round(value), PERCENTAGE: round((od_gross - ncb) * v / 100)
 *   discount = min(discount, od_gross - ncb)
 *   od_total = od_gross - ncb - discount
 *
 * The context NCB and discount win over the rule defaults. The clamp keeps
 * od_total non-negative so od_gross - ncb - discount = od_total always holds.
 */

// odAdjustment is the itemised OD discount result.
type odAdjustment struct {
	gross    decimal.Decimal
	ncb      decimal.Decimal
	discount decimal.Decimal
	total    decimal.Decimal
}

func checkDiscount(d *types.Discount) error {
	switch d.Kind {
	case types.DiscountFlat:
	case types.DiscountPercentage:
		if d.Value.GreaterThan(hundred) {
			return fmt.Errorf("discount percentage %s above 100", d.Value)
		}
	default:
		return fmt.Errorf("unknown discount kind %q", d.Kind)
	}
	if d.Value.IsNegative() {
		return fmt.Errorf("discount value %s is negative", d.Value)
	}
	return nil
}

// applyODDiscounts computes the OD adjustment for a tenure-scaled gross.
func applyODDiscounts(gross decimal.Decimal, ncbPct decimal.Decimal, discount *types.Discount) odAdjustment {
	adj := odAdjustment{gross: gross}
	adj.ncb = roundRupees(percentOf(gross, ncbPct))
	if adj.ncb.GreaterThan(gross) {
		adj.ncb = gross
	}

	remaining := gross.Sub(adj.ncb)
	adj.discount = decimal.Zero
	if discount != nil {
		switch discount.Kind {
		case types.DiscountFlat:
			adj.discount = roundRupees(discount.Value)
		case types.DiscountPercentage:
			adj.discount = roundRupees(percentOf(remaining, discount.Value))
		}
		if adj.discount.GreaterThan(remaining) {
			adj.discount = remaining
		}
	}
	adj.total = remaining.Sub(adj.discount)
	return adj
}

// effectiveNCB picks the context NCB over the rule default.
func (d *CompiledDocument) effectiveNCB(ctx types.EvaluationContext) decimal.Decimal {
	if ctx.NCBPercentage.Valid {
		return ctx.NCBPercentage.Decimal
	}
	if d.ncbPercentage.Valid {
		return d.ncbPercentage.Decimal
	}
	return decimal.Zero
}

// effectiveDiscount picks the context discount over the rule default.
func (d *CompiledDocument) effectiveDiscount(ctx types.EvaluationContext) *types.Discount {
	if ctx.Discount != nil {
		return ctx.Discount
	}
	return d.discount
}
