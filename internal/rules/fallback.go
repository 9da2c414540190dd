// internal/rules/fallback.go
package rules

import (
	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

// FallbackRuleID identifies the built-in comprehensive insurance rule.
const FallbackRuleID types.RuleID = "fallback-insurance"

// FallbackInsuranceRule returns the generic comprehensive two-wheeler rule
// priced when no insurer rule applies: OD at 1.5% of IDV, TP by engine CC
// slab, zero-dep at 0.2% of IDV and a mandatory PA cover.
func FallbackInsuranceRule() *types.RuleDocument {
	amount := decimal.NewFromInt
	pct := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	max := func(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(amount(v)) }

	return &types.RuleDocument{
		ID:            FallbackRuleID,
		DisplayID:     "FALLBACK",
		Kind:          types.RuleKindInsurance,
		Name:          "Default Comprehensive",
		Version:       1,
		Status:        types.RuleStatusActive,
		StateCode:     "ALL",
		VehicleType:   "TWO_WHEELER",
		InsurerName:   "Generic Insurer",
		IDVPercentage: decimal.NewNullDecimal(amount(95)),
		GSTPercentage: decimal.NewNullDecimal(amount(18)),
		ODComponents: []types.Component{
			{ID: "od", Type: types.ComponentPercentage, Label: "Own Damage", Percentage: pct("1.5"), Basis: types.FieldIDV},
		},
		TPComponents: []types.Component{
			{
				ID:           "tp",
				Type:         types.ComponentSlab,
				Label:        "Third Party",
				SlabVariable: types.FieldEngineCC,
				Ranges: []types.SlabRange{
					{ID: "tp1", Min: amount(0), Max: max(75), Amount: amount(482)},
					{ID: "tp2", Min: amount(75), Max: max(150), Amount: amount(714)},
					{ID: "tp3", Min: amount(150), Max: max(350), Amount: amount(1366)},
					{ID: "tp4", Min: amount(350), Amount: amount(2804)},
				},
			},
		},
		Addons: []types.Component{
			{ID: "zero-dep", Type: types.ComponentPercentage, Label: "Zero Depreciation", Percentage: pct("0.2"), Basis: types.FieldIDV},
			{ID: "pa-cover", Type: types.ComponentFixed, Label: "PA Cover", Amount: amount(375), IsMandatory: true},
		},
	}
}
