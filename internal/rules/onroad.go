// internal/rules/onroad.go
package rules

import "github.com/shopspring/decimal"

// OnRoadInput carries the priced parts of an on-road figure.
type OnRoadInput struct {
	ExShowroom        decimal.Decimal `json:"ex_showroom"`
	RegistrationTotal decimal.Decimal `json:"registration_total"`
	InsuranceTotal    decimal.Decimal `json:"insurance_total"`
	Discount          decimal.Decimal `json:"discount"`
	DealerOffer       decimal.Decimal `json:"dealer_offer"`
	Override          decimal.Decimal `json:"on_road_override"`
}

// OnRoadResult is the composed on-road price.
type OnRoadResult struct {
	ExShowroom        decimal.Decimal `json:"ex_showroom"`
	RegistrationTotal decimal.Decimal `json:"registration_total"`
	InsuranceTotal    decimal.Decimal `json:"insurance_total"`
	Discount          decimal.Decimal `json:"discount"`
	DealerOffer       decimal.Decimal `json:"dealer_offer"`
	CalculatedOnRoad  decimal.Decimal `json:"calculated_on_road"`
	FinalOnRoad       decimal.Decimal `json:"final_on_road"`
	Overridden        bool            `json:"overridden"`
}

// ComposeOnRoad sums ex-showroom, registration and insurance, subtracts the
// discount and dealer offer and floors at zero. A positive override wins.
func ComposeOnRoad(in OnRoadInput) OnRoadResult {
	calculated := in.ExShowroom.
		Add(in.RegistrationTotal).
		Add(in.InsuranceTotal).
		Sub(in.Discount).
		Sub(in.DealerOffer)
	if calculated.IsNegative() {
		calculated = decimal.Zero
	}

	out := OnRoadResult{
		ExShowroom:        in.ExShowroom,
		RegistrationTotal: in.RegistrationTotal,
		InsuranceTotal:    in.InsuranceTotal,
		Discount:          in.Discount,
		DealerOffer:       in.DealerOffer,
		CalculatedOnRoad:  calculated,
		FinalOnRoad:       calculated,
	}
	if in.Override.IsPositive() {
		out.FinalOnRoad = in.Override
		out.Overridden = true
	}
	return out
}
