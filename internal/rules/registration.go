// internal/rules/registration.go
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Registration and road-tax evaluation.
 *
 * A single components list is walked with a scaler that adjusts PRO_RATA
 * leaves by registration type:
 *   - STATE_INDIVIDUAL: x1 over state_tenure years
 *   - BH_SERIES: x bh_tenure / state_tenure
 *   - COMPANY: x company_multiplier
 *
 * Scaling happens as each leaf resolves, so registers and
 * PREVIOUS_TAX_TOTAL see the scaled amounts. The total is rounded once.
 */

// RegistrationResult is the priced breakdown of one registration evaluation.
type RegistrationResult struct {
	RuleID           types.RuleID           `json:"rule_id,omitempty"`
	RuleVersion      int                    `json:"rule_version,omitempty"`
	RegistrationType types.RegistrationType `json:"registration_type"`
	Breakdown        []LineItem             `json:"breakdown"`
	TotalAmount      decimal.Decimal        `json:"total_amount"`
	TenureYears      int                    `json:"tenure_years"`
	Multiplier       decimal.Decimal        `json:"multiplier"`
}

// EvaluateRegistration prices a compiled registration document against a
// context.
func EvaluateRegistration(doc *CompiledDocument, ctx types.EvaluationContext) (*RegistrationResult, error) {
	if doc.Kind != types.RuleKindRegistration {
		return nil, fmt.Errorf("%w: %s document priced as registration", types.ErrRuleKindMismatch, doc.Kind)
	}
	if err := ValidateContext(ctx); err != nil {
		return nil, err
	}

	regType := ctx.RegistrationType
	if regType == "" {
		regType = types.RegStateIndividual
	}

	result := &RegistrationResult{
		RuleID:           doc.RuleID,
		RuleVersion:      doc.Version,
		RegistrationType: regType,
		TenureYears:      doc.stateTenure,
		Multiplier:       decimal.NewFromInt(1),
	}

	var meta string
	switch regType {
	case types.RegBHSeries:
		bh, err := doc.resolveTenure(ctx, types.TenureBH)
		if err != nil {
			return nil, err
		}
		result.TenureYears = bh
		result.Multiplier = years(bh).Div(years(doc.stateTenure))
		meta = fmt.Sprintf("BH pro-rata %d/%d years", bh, doc.stateTenure)
	case types.RegCompany:
		result.Multiplier = doc.companyMultiplier
		meta = fmt.Sprintf("company x%s", doc.companyMultiplier)
	}

	e := env{
		fields: fieldSet{ctx: ctx, regType: regType},
		scale:  proRataScaler(regType, result.TenureYears, doc.stateTenure, doc.companyMultiplier, meta),
	}
	items, _, err := resolveBlock(doc.components, e, newRegisters())
	if err != nil {
		return nil, err
	}

	result.Breakdown = nonNil(items)
	result.TotalAmount = roundRupees(sumAmounts(items))
	return result, nil
}

// proRataScaler builds the leaf scaler for a registration type. BH scaling
// multiplies before dividing to keep the decimal exact where possible.
func proRataScaler(regType types.RegistrationType, tenure, stateTenure int, multiplier decimal.Decimal, meta string) scaler {
	return func(l leaf, amount decimal.Decimal) (decimal.Decimal, string) {
		if l.treatment != types.TreatmentProRata {
			return amount, ""
		}
		switch regType {
		case types.RegBHSeries:
			return amount.Mul(years(tenure)).Div(years(stateTenure)), meta
		case types.RegCompany:
			return amount.Mul(multiplier), meta
		default:
			return amount, ""
		}
	}
}
