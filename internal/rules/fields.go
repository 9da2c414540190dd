// internal/rules/fields.go
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Field resolution.
 *
 * Resolves a named field against the evaluation context and the walker's
 * registers. Context fields are fixed for the whole evaluation; register
 * fields change as the fold proceeds:
 *   - PREVIOUS_TAX_TOTAL: running total of leaves already resolved in the
 *     current section
 *   - TARGET_COMPONENT: resolved amount of a named component
 *   - OD_PREMIUM: per-year OD gross, published after the OD section
 *
 * Availability is checked twice. compile rejects fields that can never
 * exist for the document kind or section (ErrBasisUnavailable); resolve
 * fails with INVALID_PREDICATE_FIELD when an optional context attribute is
 * absent and with UNRESOLVED_TARGET when the target sits on a branch that
 * was not taken. Neither case falls back to zero.
 */

// section identifies which top-level list a node belongs to.
type section string

const (
	sectionOD           section = "od_components"
	sectionTP           section = "tp_components"
	sectionAddons       section = "addons"
	sectionRegistration section = "components"
)

// fieldKinds lists every known field and its comparison kind.
var fieldKinds = map[types.Field]FieldKind{
	types.FieldExShowroom:         FieldKindNumeric,
	types.FieldInvoiceBase:        FieldKindNumeric,
	types.FieldIDV:                FieldKindNumeric,
	types.FieldEngineCC:           FieldKindNumeric,
	types.FieldKWRating:           FieldKindNumeric,
	types.FieldSeatingCapacity:    FieldKindNumeric,
	types.FieldGrossVehicleWeight: FieldKindNumeric,
	types.FieldFuelType:           FieldKindText,
	types.FieldRegType:            FieldKindText,
	types.FieldODPremium:          FieldKindNumeric,
	types.FieldPreviousTaxTotal:   FieldKindNumeric,
	types.FieldTargetComponent:    FieldKindNumeric,
}

// fieldAvailable reports whether field can ever be resolved in the given
// document kind and section.
func fieldAvailable(kind types.RuleKind, sec section, field types.Field) error {
	if _, ok := fieldKinds[field]; !ok {
		return fmt.Errorf("%w: %q", types.ErrUnknownField, field)
	}
	switch field {
	case types.FieldIDV:
		if kind != types.RuleKindInsurance {
			return fmt.Errorf("%w: IDV outside insurance rules", types.ErrBasisUnavailable)
		}
	case types.FieldODPremium:
		if kind != types.RuleKindInsurance || sec == sectionOD {
			return fmt.Errorf("%w: OD_PREMIUM in %s", types.ErrBasisUnavailable, sec)
		}
	case types.FieldRegType:
		if kind != types.RuleKindRegistration {
			return fmt.Errorf("%w: REG_TYPE outside registration rules", types.ErrBasisUnavailable)
		}
	}
	return nil
}

// fieldSet holds the context-derived values of one evaluation.
type fieldSet struct {
	ctx       types.EvaluationContext
	idv       decimal.NullDecimal
	odPremium decimal.NullDecimal
	regType   types.RegistrationType
}

// withODPremium returns a copy with the OD per-year gross published.
func (f fieldSet) withODPremium(gross decimal.Decimal) fieldSet {
	f.odPremium = decimal.NullDecimal{Decimal: gross, Valid: true}
	return f
}

// contextValue reads a context-backed field. ok is false when the field is
// register-backed or the optional attribute is absent.
func (f fieldSet) contextValue(field types.Field) (Value, bool) {
	optional := func(d decimal.NullDecimal) (Value, bool) {
		if !d.Valid {
			return Value{}, false
		}
		return numericValue(d.Decimal), true
	}

	switch field {
	case types.FieldExShowroom:
		return numericValue(f.ctx.ExShowroomPrice), true
	case types.FieldInvoiceBase:
		if f.ctx.InvoiceBase.Valid {
			return numericValue(f.ctx.InvoiceBase.Decimal), true
		}
		return numericValue(f.ctx.ExShowroomPrice), true
	case types.FieldIDV:
		return optional(f.idv)
	case types.FieldEngineCC:
		return numericValue(f.ctx.EngineCC), true
	case types.FieldKWRating:
		return optional(f.ctx.KWRating)
	case types.FieldSeatingCapacity:
		return optional(f.ctx.SeatingCapacity)
	case types.FieldGrossVehicleWeight:
		return optional(f.ctx.GrossVehicleWeight)
	case types.FieldFuelType:
		return textValue(string(f.ctx.FuelType)), true
	case types.FieldRegType:
		if f.regType == "" {
			return Value{}, false
		}
		return textValue(string(f.regType)), true
	case types.FieldODPremium:
		return optional(f.odPremium)
	default:
		return Value{}, false
	}
}

// resolve reads field for component id, consulting the registers for
// register-backed fields.
func (f fieldSet) resolve(id string, field types.Field, target string, regs registers) (Value, error) {
	switch field {
	case types.FieldPreviousTaxTotal:
		return numericValue(regs.section), nil
	case types.FieldTargetComponent:
		amount, ok := regs.values[target]
		if !ok {
			return Value{}, &types.RuleResolutionError{
				Kind:        types.UnresolvedTarget,
				ComponentID: id,
				Detail:      fmt.Sprintf("target %q was not resolved on this path", target),
			}
		}
		return numericValue(amount), nil
	}

	v, ok := f.contextValue(field)
	if !ok {
		return Value{}, &types.RuleResolutionError{
			Kind:        types.InvalidPredicateField,
			ComponentID: id,
			Detail:      fmt.Sprintf("field %s is not set", field),
		}
	}
	return v, nil
}

// activation builds the CEL variable bindings. Absent optional attributes
// are left unbound so an expression reading them fails instead of seeing 0.
func (f fieldSet) activation(regs registers) map[string]any {
	vars := map[string]any{
		"section_total": regs.section.InexactFloat64(),
	}
	components := make(map[string]float64, len(regs.values))
	for id, amount := range regs.values {
		components[id] = amount.InexactFloat64()
	}
	vars["components"] = components

	for field, name := range celFieldNames {
		v, ok := f.contextValue(field)
		if !ok {
			continue
		}
		if v.Kind == FieldKindNumeric {
			vars[name] = v.Num.InexactFloat64()
		} else {
			vars[name] = v.Text
		}
	}
	return vars
}
