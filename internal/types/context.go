package types

import "github.com/shopspring/decimal"

// EvaluationContext is the flat input needed to price one vehicle instance.
// Optional numeric attributes use NullDecimal; an absent attribute read by a
// rule is a resolution error, never an implicit zero.
type EvaluationContext struct {
	ExShowroomPrice decimal.Decimal `json:"ex_showroom_price" validate:"gt=0"`
	EngineCC        decimal.Decimal `json:"engine_cc" validate:"gt=0"`
	FuelType        FuelType        `json:"fuel_type" validate:"required,oneof=PETROL DIESEL EV CNG"`

	CustomIDV          decimal.NullDecimal `json:"custom_idv"`
	InvoiceBase        decimal.NullDecimal `json:"invoice_base"`
	KWRating           decimal.NullDecimal `json:"kw_rating"`
	SeatingCapacity    decimal.NullDecimal `json:"seating_capacity"`
	GrossVehicleWeight decimal.NullDecimal `json:"gross_vehicle_weight"`

	RegistrationType RegistrationType      `json:"registration_type,omitempty" validate:"omitempty,oneof=STATE_INDIVIDUAL BH_SERIES COMPANY"`
	Tenures          map[TenureCategory]int `json:"tenures,omitempty" validate:"omitempty,dive,keys,oneof=OD TP ADDONS BH,endkeys"`

	NCBPercentage decimal.NullDecimal `json:"ncb_percentage"`
	Discount      *Discount           `json:"discount,omitempty" validate:"omitempty"`
}

// WithTenure returns a copy of the context with one tenure selection set.
func (c EvaluationContext) WithTenure(category TenureCategory, years int) EvaluationContext {
	tenures := make(map[TenureCategory]int, len(c.Tenures)+1)
	for k, v := range c.Tenures {
		tenures[k] = v
	}
	tenures[category] = years
	c.Tenures = tenures
	return c
}
