// internal/types/rules.go
package types

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

/*
 * Rule document model.
 *
 * RuleDocument is the versioned, authored configuration priced by the
 * engines. Component is the flat wire form of the component tagged union:
 * one struct carries the fields of every variant and Type selects which
 * ones are meaningful. internal/rules compiles it into a closed set of node
 * types before anything is evaluated.
 *
 * Insurance documents price three sections (od_components, tp_components,
 * addons); the section a leaf sits in decides its bucket. Registration
 * documents price a single components list.
 *
 * Nil vs empty: DefaultBlock nil means "no default" and an unmatched switch
 * fails; an empty non-nil DefaultBlock means "match nothing, charge nothing".
 * The JSON form keeps the distinction (null vs []).
 */

// ComponentType discriminates the component tagged union.
type ComponentType string

const (
	ComponentFixed       ComponentType = "FIXED"
	ComponentPercentage  ComponentType = "PERCENTAGE"
	ComponentSlab        ComponentType = "SLAB"
	ComponentConditional ComponentType = "CONDITIONAL"
	ComponentSwitch      ComponentType = "SWITCH"
)

// Field names a value a component can read: a context attribute or one of
// the register-backed bases (OD_PREMIUM, PREVIOUS_TAX_TOTAL, TARGET_COMPONENT).
type Field string

const (
	FieldExShowroom         Field = "EX_SHOWROOM"
	FieldInvoiceBase        Field = "INVOICE_BASE"
	FieldIDV                Field = "IDV"
	FieldEngineCC           Field = "ENGINE_CC"
	FieldKWRating           Field = "KW_RATING"
	FieldSeatingCapacity    Field = "SEATING_CAPACITY"
	FieldGrossVehicleWeight Field = "GROSS_VEHICLE_WEIGHT"
	FieldFuelType           Field = "FUEL_TYPE"
	FieldRegType            Field = "REG_TYPE"
	FieldODPremium          Field = "OD_PREMIUM"
	FieldPreviousTaxTotal   Field = "PREVIOUS_TAX_TOTAL"
	FieldTargetComponent    Field = "TARGET_COMPONENT"
)

// VariantTreatment controls registration scaling of a leaf.
type VariantTreatment string

const (
	TreatmentNone    VariantTreatment = "NONE"
	TreatmentProRata VariantTreatment = "PRO_RATA"
)

// SlabValueType selects whether a matched range charges its amount or a
// percentage of the component basis.
type SlabValueType string

const (
	SlabValueFixed      SlabValueType = "FIXED"
	SlabValuePercentage SlabValueType = "PERCENTAGE"
)

// ConditionOperator is the comparison of a structured predicate.
type ConditionOperator string

const (
	OperatorEquals         ConditionOperator = "EQUALS"
	OperatorNotEquals      ConditionOperator = "NOT_EQUALS"
	OperatorGreaterThan    ConditionOperator = "GREATER_THAN"
	OperatorLessThan       ConditionOperator = "LESS_THAN"
	OperatorGreaterOrEqual ConditionOperator = "GREATER_OR_EQUAL"
	OperatorLessOrEqual    ConditionOperator = "LESS_OR_EQUAL"
	OperatorIn             ConditionOperator = "IN"
)

// DiscountKind selects how a manual discount value is read.
type DiscountKind string

const (
	DiscountFlat       DiscountKind = "FLAT"
	DiscountPercentage DiscountKind = "PERCENTAGE"
)

// Discount is a manual OD reduction, flat rupees or percent.
type Discount struct {
	Kind  DiscountKind    `json:"kind" validate:"required,oneof=FLAT PERCENTAGE"`
	Value decimal.Decimal `json:"value" validate:"gte=0"`
}

// Literal is an authored comparison value. Accepts JSON strings, numbers
// and booleans so YAML-authored documents decode without quoting.
type Literal string

// UnmarshalJSON implements json.Unmarshaler.
func (l *Literal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Literal(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	*l = Literal(data)
	return nil
}

// TenureOption is the default and allowed tenure years of one category.
type TenureOption struct {
	Default int   `json:"default"`
	Allowed []int `json:"allowed"`
}

// SlabRange is one breakpoint of a SLAB component. Max nil means unbounded.
type SlabRange struct {
	ID              string              `json:"id,omitempty"`
	Min             decimal.Decimal     `json:"min"`
	Max             decimal.NullDecimal `json:"max"`
	Amount          decimal.Decimal     `json:"amount"`
	Percentage      decimal.Decimal     `json:"percentage"`
	ApplicableFuels []FuelType          `json:"applicable_fuels,omitempty"`
	SlabBasis       Field               `json:"slab_basis,omitempty"`
}

// SwitchCase is one arm of a SWITCH component.
type SwitchCase struct {
	ID         string      `json:"id,omitempty"`
	Label      string      `json:"label,omitempty"`
	MatchValue Literal     `json:"match_value"`
	Block      []Component `json:"block"`
}

// Component is the wire form of one rule tree node.
type Component struct {
	ID               string           `json:"id"`
	Type             ComponentType    `json:"type"`
	Label            string           `json:"label"`
	IsMandatory      bool             `json:"is_mandatory,omitempty"`
	VariantTreatment VariantTreatment `json:"variant_treatment,omitempty"`

	// FIXED, PERCENTAGE
	Amount            decimal.Decimal              `json:"amount"`
	Percentage        decimal.Decimal              `json:"percentage"`
	Basis             Field                        `json:"basis,omitempty"`
	TargetComponentID string                       `json:"target_component_id,omitempty"`
	FuelMatrix        map[FuelType]decimal.Decimal `json:"fuel_matrix,omitempty"`

	// SLAB
	SlabVariable  Field         `json:"slab_variable,omitempty"`
	SlabValueType SlabValueType `json:"slab_value_type,omitempty"`
	Ranges        []SlabRange   `json:"ranges,omitempty"`

	// CONDITIONAL
	ConditionVariable Field             `json:"condition_variable,omitempty"`
	ConditionOperator ConditionOperator `json:"condition_operator,omitempty"`
	ConditionValue    Literal           `json:"condition_value,omitempty"`
	Expression        string            `json:"expression,omitempty"`
	ThenBlock         []Component       `json:"then_block,omitempty"`
	ElseBlock         []Component       `json:"else_block,omitempty"`

	// SWITCH
	SwitchVariable Field        `json:"switch_variable,omitempty"`
	Cases          []SwitchCase `json:"cases,omitempty"`
	DefaultBlock   []Component  `json:"default_block"`
}

// RuleDocument is a versioned insurance or registration rule.
type RuleDocument struct {
	ID            RuleID     `json:"id"`
	DisplayID     string     `json:"display_id,omitempty"`
	Kind          RuleKind   `json:"kind"`
	Name          string     `json:"name,omitempty"`
	Version       int        `json:"version"`
	Status        RuleStatus `json:"status"`
	StateCode     string     `json:"state_code"`
	VehicleType   string     `json:"vehicle_type"`
	InsurerName   string     `json:"insurer_name,omitempty"`
	EffectiveFrom string     `json:"effective_from,omitempty"`

	TenureConfig  map[TenureCategory]TenureOption `json:"tenure_config,omitempty"`
	GSTPercentage decimal.NullDecimal             `json:"gst_percentage"`

	// Insurance
	IDVPercentage decimal.NullDecimal `json:"idv_percentage"`
	NCBPercentage decimal.NullDecimal `json:"ncb_percentage"`
	Discount      *Discount           `json:"discount,omitempty"`
	ODComponents  []Component         `json:"od_components,omitempty"`
	TPComponents  []Component         `json:"tp_components,omitempty"`
	Addons        []Component         `json:"addons,omitempty"`

	// Registration
	Components        []Component         `json:"components,omitempty"`
	StateTenure       int                 `json:"state_tenure,omitempty"`
	BHTenure          int                 `json:"bh_tenure,omitempty"`
	CompanyMultiplier decimal.NullDecimal `json:"company_multiplier"`
}

// Scope returns the lookup scope of the document.
// Registration rules are not insurer-scoped.
func (d *RuleDocument) Scope() Scope {
	s := Scope{StateCode: d.StateCode, VehicleType: d.VehicleType}
	if d.Kind == RuleKindInsurance {
		s.InsurerName = d.InsurerName
	}
	return s
}

// ScopeKey returns Scope().Key().
func (d *RuleDocument) ScopeKey() string {
	return d.Scope().Key()
}
