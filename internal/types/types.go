// Package types provides domain models shared across ratekeeper components.
//
// Wire-format types: the rule document and evaluation context are plain
// structs with snake_case JSON tags. The engine in internal/rules compiles
// them into its own closed representation; nothing here carries behavior
// beyond validation helpers and scope keys.
//
// Monetary and numeric inputs use shopspring/decimal so authored values
// survive JSON round trips without float drift.
package types

import "strings"

// RuleID represents a UUIDv7 rule document identifier.
// String alias enables type safety while maintaining JSON string serialization.
type RuleID string

// QuoteID represents a UUIDv7 identifier of a persisted quote.
type QuoteID string

// RuleKind selects which engine a rule document feeds.
type RuleKind string

const (
	RuleKindInsurance    RuleKind = "INSURANCE"
	RuleKindRegistration RuleKind = "REGISTRATION"
)

// RuleStatus is the publication state of a rule document.
// Only ACTIVE documents are eligible for live pricing.
type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "ACTIVE"
	RuleStatusInactive RuleStatus = "INACTIVE"
)

// QuoteKind labels a persisted quote by the engine that priced it.
type QuoteKind string

const (
	QuoteInsurance    QuoteKind = "INSURANCE"
	QuoteRegistration QuoteKind = "REGISTRATION"
	QuoteOnRoad       QuoteKind = "ON_ROAD"
)

// FuelType is the vehicle fuel technology.
type FuelType string

const (
	FuelPetrol FuelType = "PETROL"
	FuelDiesel FuelType = "DIESEL"
	FuelEV     FuelType = "EV"
	FuelCNG    FuelType = "CNG"
)

// RegistrationType selects the registration scheme priced by the
// registration engine.
type RegistrationType string

const (
	RegStateIndividual RegistrationType = "STATE_INDIVIDUAL"
	RegBHSeries        RegistrationType = "BH_SERIES"
	RegCompany         RegistrationType = "COMPANY"
)

// TenureCategory names an independently tenured priced category.
type TenureCategory string

const (
	TenureOD     TenureCategory = "OD"
	TenureTP     TenureCategory = "TP"
	TenureAddons TenureCategory = "ADDONS"
	TenureBH     TenureCategory = "BH"
)

// Scope identifies the jurisdiction/product combination a rule applies to.
type Scope struct {
	StateCode   string `json:"state_code"`
	VehicleType string `json:"vehicle_type"`
	InsurerName string `json:"insurer_name,omitempty"`
}

// Key returns the lookup key used for ACTIVE uniqueness.
// Format: STATE/VEHICLE_TYPE, with /INSURER appended when set.
func (s Scope) Key() string {
	parts := []string{
		strings.ToUpper(strings.TrimSpace(s.StateCode)),
		strings.ToUpper(strings.TrimSpace(s.VehicleType)),
	}
	if insurer := strings.TrimSpace(s.InsurerName); insurer != "" {
		parts = append(parts, strings.ToUpper(insurer))
	}
	return strings.Join(parts, "/")
}

// Resource limits enforced at compile time to keep evaluation bounded.
const (
	// MaxTreeDepth bounds recursion through conditional and switch blocks.
	MaxTreeDepth = 8

	// MaxComponents caps the total node count of one document.
	MaxComponents = 256

	// MaxSlabRanges caps the ranges of a single SLAB component.
	MaxSlabRanges = 64

	// MaxSwitchCases caps the cases of a single SWITCH component.
	MaxSwitchCases = 32

	// MaxInValues caps the comma-separated values of an IN predicate.
	MaxInValues = 64

	// MaxDocumentSize limits an encoded rule document.
	MaxDocumentSize = 1024 * 1024
)
