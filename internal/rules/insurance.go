// internal/rules/insurance.go
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Insurance premium evaluation.
 *
 * Pipeline, each step strictly after the previous:
 *   1. Validate the context and resolve OD, TP and ADDONS tenures
 *   2. IDV = custom_idv, or round(ex_showroom * idv% / 100)
 *   3. Walk od_components; publish the per-year OD sum as OD_PREMIUM
 *   4. Walk tp_components, then addons, each with a fresh section total
 *   5. Scale OD by tenure once, then apply NCB and manual discount
 *   6. Scale TP by tenure, tax the mandatory base, tax each add-on alone
 *
 * Breakdown amounts stay per year and unrounded; every total is in whole
 * rupees. The result is a snapshot: selection never re-walks the tree.
 */

// Tenures is the resolved tenure in years of each insurance category.
type Tenures struct {
	OD     int `json:"od"`
	TP     int `json:"tp"`
	Addons int `json:"addons"`
}

// AddonPrice is the tenure-scaled, taxed price of one add-on line.
type AddonPrice struct {
	Index       int             `json:"index"`
	ComponentID string          `json:"component_id"`
	Label       string          `json:"label"`
	Base        decimal.Decimal `json:"base"`
	GST         decimal.Decimal `json:"gst"`
	Inclusive   decimal.Decimal `json:"inclusive"`
	Mandatory   bool            `json:"mandatory"`
}

// InsuranceResult is the priced breakdown of one insurance evaluation.
type InsuranceResult struct {
	RuleID      types.RuleID `json:"rule_id,omitempty"`
	RuleVersion int          `json:"rule_version,omitempty"`

	ODBreakdown    []LineItem `json:"od_breakdown"`
	TPBreakdown    []LineItem `json:"tp_breakdown"`
	AddonBreakdown []LineItem `json:"addon_breakdown"`

	IDV           decimal.Decimal `json:"idv"`
	GSTPercentage decimal.Decimal `json:"gst_percentage"`
	Tenures       Tenures         `json:"tenures"`

	ODGross        decimal.Decimal `json:"od_gross"`
	NCBDiscount    decimal.Decimal `json:"ncb_discount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ODTotal        decimal.Decimal `json:"od_total"`
	TPTotal        decimal.Decimal `json:"tp_total"`

	MandatoryBase decimal.Decimal `json:"mandatory_base"`
	MandatoryGST  decimal.Decimal `json:"mandatory_gst"`
	MandatoryNet  decimal.Decimal `json:"mandatory_net"`

	AddonPrices []AddonPrice `json:"addon_prices"`

	NetPremium   decimal.Decimal `json:"net_premium"`
	GSTAmount    decimal.Decimal `json:"gst_amount"`
	TotalPremium decimal.Decimal `json:"total_premium"`
}

// EvaluateInsurance prices a compiled insurance document against a context.
func EvaluateInsurance(doc *CompiledDocument, ctx types.EvaluationContext) (*InsuranceResult, error) {
	if doc.Kind != types.RuleKindInsurance {
		return nil, fmt.Errorf("%w: %s document priced as insurance", types.ErrRuleKindMismatch, doc.Kind)
	}
	if err := ValidateContext(ctx); err != nil {
		return nil, err
	}

	var tenures Tenures
	var err error
	if tenures.OD, err = doc.resolveTenure(ctx, types.TenureOD); err != nil {
		return nil, err
	}
	if tenures.TP, err = doc.resolveTenure(ctx, types.TenureTP); err != nil {
		return nil, err
	}
	if tenures.Addons, err = doc.resolveTenure(ctx, types.TenureAddons); err != nil {
		return nil, err
	}

	idv := roundRupees(percentOf(ctx.ExShowroomPrice, doc.idvPercentage))
	if ctx.CustomIDV.Valid {
		idv = ctx.CustomIDV.Decimal
	}

	e := env{fields: fieldSet{ctx: ctx, idv: decimal.NewNullDecimal(idv)}}
	regs := newRegisters()

	odItems, regs, err := resolveBlock(doc.od, e, regs)
	if err != nil {
		return nil, err
	}
	odPerYear := sumAmounts(odItems)
	e.fields = e.fields.withODPremium(odPerYear)

	tpItems, regs, err := resolveBlock(doc.tp, e, regs.startSection())
	if err != nil {
		return nil, err
	}
	addonItems, _, err := resolveBlock(doc.addons, e, regs.startSection())
	if err != nil {
		return nil, err
	}

	result := &InsuranceResult{
		RuleID:         doc.RuleID,
		RuleVersion:    doc.Version,
		ODBreakdown:    nonNil(odItems),
		TPBreakdown:    nonNil(tpItems),
		AddonBreakdown: nonNil(addonItems),
		IDV:            idv,
		GSTPercentage:  doc.gst,
		Tenures:        tenures,
	}

	adj := applyODDiscounts(
		roundRupees(odPerYear.Mul(years(tenures.OD))),
		doc.effectiveNCB(ctx),
		doc.effectiveDiscount(ctx),
	)
	result.ODGross = adj.gross
	result.NCBDiscount = adj.ncb
	result.DiscountAmount = adj.discount
	result.ODTotal = adj.total
	result.TPTotal = roundRupees(sumAmounts(tpItems).Mul(years(tenures.TP)))

	mandatory := applyGST(result.ODTotal.Add(result.TPTotal), doc.gst)
	result.MandatoryBase = mandatory.base
	result.MandatoryGST = mandatory.gst
	result.MandatoryNet = mandatory.inclusive

	result.NetPremium = mandatory.base
	result.GSTAmount = mandatory.gst
	result.TotalPremium = mandatory.inclusive
	result.AddonPrices = make([]AddonPrice, 0, len(addonItems))
	for i, item := range addonItems {
		p := priceAddon(item.Amount, tenures.Addons, doc.gst)
		result.AddonPrices = append(result.AddonPrices, AddonPrice{
			Index:       i,
			ComponentID: item.ComponentID,
			Label:       item.Label,
			Base:        p.base,
			GST:         p.gst,
			Inclusive:   p.inclusive,
			Mandatory:   item.Mandatory,
		})
		result.NetPremium = result.NetPremium.Add(p.base)
		result.GSTAmount = result.GSTAmount.Add(p.gst)
		result.TotalPremium = result.TotalPremium.Add(p.inclusive)
	}
	return result, nil
}

func nonNil(items []LineItem) []LineItem {
	if items == nil {
		return []LineItem{}
	}
	return items
}
