// internal/rules/insurance_test.go
package rules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/ratekeeper/internal/types"
)

func TestEvaluateInsurance_Scenario(t *testing.T) {
	compiled := mustCompile(t, FallbackInsuranceRule())

	res, err := EvaluateInsurance(compiled, scenarioContext())
	require.NoError(t, err)

	assertRupees(t, "IDV", res.IDV, "95000")
	assert.Equal(t, Tenures{OD: 1, TP: 5, Addons: 1}, res.Tenures)

	require.Len(t, res.ODBreakdown, 1)
	assertRupees(t, "od line", res.ODBreakdown[0].Amount, "1425")
	require.Len(t, res.TPBreakdown, 1)
	assertRupees(t, "tp line", res.TPBreakdown[0].Amount, "714")

	assertRupees(t, "ODGross", res.ODGross, "1425")
	assertRupees(t, "ODTotal", res.ODTotal, "1425")
	assertRupees(t, "TPTotal", res.TPTotal, "3570")
	assertRupees(t, "MandatoryBase", res.MandatoryBase, "4995")
	assertRupees(t, "MandatoryGST", res.MandatoryGST, "899")
	assertRupees(t, "MandatoryNet", res.MandatoryNet, "5894")

	require.Len(t, res.AddonPrices, 2)
	assertRupees(t, "zero-dep inclusive", res.AddonPrices[0].Inclusive, "224")
	assertRupees(t, "pa base", res.AddonPrices[1].Base, "375")
	assertRupees(t, "pa gst", res.AddonPrices[1].GST, "68")
	assertRupees(t, "pa inclusive", res.AddonPrices[1].Inclusive, "443")
	assert.True(t, res.AddonPrices[1].Mandatory)

	assertRupees(t, "NetPremium", res.NetPremium, "5560")
	assertRupees(t, "GSTAmount", res.GSTAmount, "1001")
	assertRupees(t, "TotalPremium", res.TotalPremium, "6561")

	// Rounded, GST-inclusive breakdown sums reconcile to the mandatory net.
	sum := res.ODTotal.Add(res.TPTotal).Add(res.MandatoryGST)
	assertRupees(t, "OD+TP+GST", sum, res.MandatoryNet.String())
}

func TestEvaluateInsurance_ToggleReducesPayableByInclusive(t *testing.T) {
	res, err := EvaluateInsurance(mustCompile(t, FallbackInsuranceRule()), scenarioContext())
	require.NoError(t, err)

	all := DefaultSelection(res)
	assertRupees(t, "Payable(all)", Payable(res, all), res.TotalPremium.String())

	without, err := all.Toggle(res, 0)
	require.NoError(t, err)
	diff := Payable(res, all).Sub(Payable(res, without))
	assertRupees(t, "payable difference", diff, res.AddonPrices[0].Inclusive.String())
	assertRupees(t, "Payable(without zero-dep)", Payable(res, without), "6337")

	// The original selection is untouched.
	assert.True(t, all.Selected(0))

	_, err = all.Toggle(res, 1)
	assert.ErrorIs(t, err, types.ErrMandatoryAddon)
	_, err = all.Toggle(res, 7)
	assert.ErrorIs(t, err, types.ErrAddonIndex)
}

func TestSelectionOf_KeepsMandatory(t *testing.T) {
	res, err := EvaluateInsurance(mustCompile(t, FallbackInsuranceRule()), scenarioContext())
	require.NoError(t, err)

	sel, err := SelectionOf(res, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sel.Indices())
	assertRupees(t, "Payable(mandatory only)", Payable(res, sel), "6337")

	_, err = SelectionOf(res, []int{-1})
	assert.ErrorIs(t, err, types.ErrAddonIndex)
}

func TestEvaluateInsurance_AddonRoundingPerAddon(t *testing.T) {
	tests := []struct {
		name      string
		amounts   [2]string
		perAddon  string
		roundSum  string
		different bool
	}{
		{name: "33 and 34 agree", amounts: [2]string{"33", "34"}, perAddon: "12", roundSum: "12"},
		{name: "25 and 25 differ", amounts: [2]string{"25", "25"}, perAddon: "10", roundSum: "9", different: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := insuranceDoc(nil, nil, []types.Component{
				fixed("a", tt.amounts[0]),
				fixed("b", tt.amounts[1]),
			})
			res, err := EvaluateInsurance(mustCompile(t, doc), scenarioContext())
			require.NoError(t, err)

			perAddon := res.AddonPrices[0].GST.Add(res.AddonPrices[1].GST)
			baseSum := res.AddonPrices[0].Base.Add(res.AddonPrices[1].Base)
			roundSum := roundRupees(percentOf(baseSum, res.GSTPercentage))

			assertRupees(t, "per-addon GST", perAddon, tt.perAddon)
			assertRupees(t, "GST of summed base", roundSum, tt.roundSum)
			assert.Equal(t, tt.different, !perAddon.Equal(roundSum))

			// The charged figure is the per-add-on one.
			assertRupees(t, "GSTAmount", res.GSTAmount, tt.perAddon)
		})
	}
}

func TestEvaluateInsurance_TierBoundary(t *testing.T) {
	compiled := mustCompile(t, FallbackInsuranceRule())

	tests := []struct {
		cc   string
		want string
	}{
		{cc: "74.9", want: "482"},
		{cc: "75", want: "714"},
		{cc: "149", want: "714"},
		{cc: "150", want: "1366"},
		{cc: "350", want: "2804"},
		{cc: "1200", want: "2804"},
	}
	for _, tt := range tests {
		t.Run(tt.cc, func(t *testing.T) {
			ctx := scenarioContext()
			ctx.EngineCC = dec(tt.cc)
			res, err := EvaluateInsurance(compiled, ctx)
			require.NoError(t, err)
			assertRupees(t, "tp line", res.TPBreakdown[0].Amount, tt.want)
		})
	}
}

func TestEvaluateInsurance_NCBAndDiscount(t *testing.T) {
	doc := insuranceDoc([]types.Component{fixed("od", "1000")}, nil, nil)
	doc.NCBPercentage = nullDec("20")

	tests := []struct {
		name     string
		ncb      string
		discount *types.Discount
		odTenure int
		wantNCB  string
		wantDisc string
		wantOD   string
	}{
		{name: "rule ncb only", odTenure: 1, wantNCB: "200", wantDisc: "0", wantOD: "800"},
		{name: "context ncb wins", ncb: "50", odTenure: 1, wantNCB: "500", wantDisc: "0", wantOD: "500"},
		{
			name: "flat discount", odTenure: 3,
			discount: &types.Discount{Kind: types.DiscountFlat, Value: dec("100.5")},
			wantNCB:  "600", wantDisc: "101", wantOD: "2299",
		},
		{
			name: "percentage discount on net of ncb", odTenure: 1,
			discount: &types.Discount{Kind: types.DiscountPercentage, Value: dec("10")},
			wantNCB:  "200", wantDisc: "80", wantOD: "720",
		},
		{
			name: "flat discount clamped", odTenure: 1,
			discount: &types.Discount{Kind: types.DiscountFlat, Value: dec("5000")},
			wantNCB:  "200", wantDisc: "800", wantOD: "0",
		},
	}

	compiled := mustCompile(t, doc)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := scenarioContext().WithTenure(types.TenureOD, tt.odTenure)
			if tt.ncb != "" {
				ctx.NCBPercentage = nullDec(tt.ncb)
			}
			ctx.Discount = tt.discount

			res, err := EvaluateInsurance(compiled, ctx)
			require.NoError(t, err)
			assertRupees(t, "NCBDiscount", res.NCBDiscount, tt.wantNCB)
			assertRupees(t, "DiscountAmount", res.DiscountAmount, tt.wantDisc)
			assertRupees(t, "ODTotal", res.ODTotal, tt.wantOD)
		})
	}
}

func TestEvaluateInsurance_InvalidTenure(t *testing.T) {
	compiled := mustCompile(t, FallbackInsuranceRule())
	ctx := scenarioContext().WithTenure(types.TenureTP, 2)

	_, err := EvaluateInsurance(compiled, ctx)
	var tenureErr *types.InvalidTenureError
	require.ErrorAs(t, err, &tenureErr)
	assert.Equal(t, types.TenureTP, tenureErr.Category)
	assert.Equal(t, 2, tenureErr.Requested)
	assert.Equal(t, []int{1, 3, 5}, tenureErr.Allowed)
	assert.ErrorIs(t, err, types.ErrInvalidTenure)
}

func TestEvaluateInsurance_NonPositiveTenure(t *testing.T) {
	compiled := mustCompile(t, FallbackInsuranceRule())

	for _, years := range []int{0, -1} {
		t.Run(fmt.Sprint(years), func(t *testing.T) {
			_, err := EvaluateInsurance(compiled, scenarioContext().WithTenure(types.TenureOD, years))
			var tenureErr *types.InvalidTenureError
			require.ErrorAs(t, err, &tenureErr)
			assert.Equal(t, types.TenureOD, tenureErr.Category)
			assert.Equal(t, years, tenureErr.Requested)
			assert.NotErrorIs(t, err, types.ErrInvalidContext)
		})
	}
}

func TestEvaluateInsurance_InvalidContext(t *testing.T) {
	compiled := mustCompile(t, FallbackInsuranceRule())

	tests := []struct {
		name   string
		mutate func(*types.EvaluationContext)
	}{
		{name: "zero price", mutate: func(c *types.EvaluationContext) { c.ExShowroomPrice = dec("0") }},
		{name: "negative cc", mutate: func(c *types.EvaluationContext) { c.EngineCC = dec("-1") }},
		{name: "unknown fuel", mutate: func(c *types.EvaluationContext) { c.FuelType = "HYDROGEN" }},
		{name: "zero custom idv", mutate: func(c *types.EvaluationContext) { c.CustomIDV = nullDec("0") }},
		{name: "ncb above 100", mutate: func(c *types.EvaluationContext) { c.NCBPercentage = nullDec("120") }},
		{name: "unknown tenure category", mutate: func(c *types.EvaluationContext) {
			c.Tenures = map[types.TenureCategory]int{"XX": 1}
		}},
		{name: "bad discount kind", mutate: func(c *types.EvaluationContext) {
			c.Discount = &types.Discount{Kind: "BOGUS", Value: dec("1")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := scenarioContext()
			tt.mutate(&ctx)
			_, err := EvaluateInsurance(compiled, ctx)
			if !errors.Is(err, types.ErrInvalidContext) {
				t.Errorf("EvaluateInsurance() error = %v, want %v", err, types.ErrInvalidContext)
			}
		})
	}
}

func TestEvaluateInsurance_CustomIDV(t *testing.T) {
	ctx := scenarioContext()
	ctx.CustomIDV = nullDec("80000")

	res, err := EvaluateInsurance(mustCompile(t, FallbackInsuranceRule()), ctx)
	require.NoError(t, err)
	assertRupees(t, "IDV", res.IDV, "80000")
	assertRupees(t, "od line", res.ODBreakdown[0].Amount, "1200")
}

func TestEvaluateInsurance_ODPremiumBasis(t *testing.T) {
	doc := insuranceDoc(
		[]types.Component{fixed("od", "1000")},
		[]types.Component{{ID: "tp", Type: types.ComponentPercentage, Percentage: dec("10"), Basis: types.FieldODPremium}},
		nil,
	)
	ctx := scenarioContext().WithTenure(types.TenureOD, 3)

	res, err := EvaluateInsurance(mustCompile(t, doc), ctx)
	require.NoError(t, err)
	// OD_PREMIUM is per year, not tenure-scaled.
	assertRupees(t, "tp line", res.TPBreakdown[0].Amount, "100")
}

func TestEvaluateInsurance_KindMismatch(t *testing.T) {
	compiled := mustCompile(t, registrationDoc([]types.Component{fixed("fee", "1")}))
	_, err := EvaluateInsurance(compiled, scenarioContext())
	assert.ErrorIs(t, err, types.ErrRuleKindMismatch)
}
