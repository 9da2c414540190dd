// internal/rules/helpers_test.go
package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/solatis/ratekeeper/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func assertRupees(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	assert.Truef(t, got.Equal(dec(want)), "%s = %s, want %s", name, got, want)
}

// scenarioContext is ex-showroom 100,000, 110cc, petrol, OD 1 year, TP 5 years.
func scenarioContext() types.EvaluationContext {
	return types.EvaluationContext{
		ExShowroomPrice: dec("100000"),
		EngineCC:        dec("110"),
		FuelType:        types.FuelPetrol,
		Tenures: map[types.TenureCategory]int{
			types.TenureOD: 1,
			types.TenureTP: 5,
		},
	}
}

func fixed(id string, amount string) types.Component {
	return types.Component{ID: id, Type: types.ComponentFixed, Label: id, Amount: dec(amount)}
}

func insuranceDoc(od, tp, addons []types.Component) *types.RuleDocument {
	return &types.RuleDocument{
		ID:           "ins-test",
		Kind:         types.RuleKindInsurance,
		Version:      1,
		Status:       types.RuleStatusActive,
		StateCode:    "MH",
		VehicleType:  "TWO_WHEELER",
		InsurerName:  "Acme",
		ODComponents: od,
		TPComponents: tp,
		Addons:       addons,
	}
}

func registrationDoc(components []types.Component) *types.RuleDocument {
	return &types.RuleDocument{
		ID:          "reg-test",
		Kind:        types.RuleKindRegistration,
		Version:     1,
		Status:      types.RuleStatusActive,
		StateCode:   "MH",
		VehicleType: "TWO_WHEELER",
		StateTenure: 15,
		BHTenure:    2,
		Components:  components,
	}
}

func mustCompile(t *testing.T, doc *types.RuleDocument) *CompiledDocument {
	t.Helper()
	compiled, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	return compiled
}
