package api

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/core/config"
	"github.com/solatis/ratekeeper/internal/core/db"
	"github.com/solatis/ratekeeper/internal/rules"
	"github.com/solatis/ratekeeper/internal/types"
)

type testEnv struct {
	svc    *QuoteService
	rules  *db.RuleStore
	quotes *db.QuoteStore
	cfg    *config.QuoteAPIConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	q, err := db.LoadQueries(database)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}

	engine := rules.NewEngine(0)
	env := &testEnv{
		rules:  db.NewRuleStore(q, engine.Validate),
		quotes: db.NewQuoteStore(q),
		cfg:    config.DefaultQuoteAPIConfig(),
	}
	env.svc, err = NewQuoteService(engine, env.rules, env.quotes, env.cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewQuoteService() error = %v", err)
	}
	return env
}

// storeActive creates doc as an ACTIVE rule and returns the stored copy.
func (e *testEnv) storeActive(t *testing.T, doc *types.RuleDocument) *types.RuleDocument {
	t.Helper()
	doc.ID = ""
	doc.Status = types.RuleStatusActive
	stored, err := e.rules.Create(context.Background(), doc)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return stored
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
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

// roadTaxRule charges a flat fee of 300 plus pct% road tax on ex-showroom.
func roadTaxRule(state, pct string) *types.RuleDocument {
	return &types.RuleDocument{
		Kind:        types.RuleKindRegistration,
		StateCode:   state,
		VehicleType: "TWO_WHEELER",
		Components: []types.Component{
			{ID: "fee", Type: types.ComponentFixed, Label: "Fee", Amount: dec("300")},
			{
				ID: "road-tax", Type: types.ComponentSlab, Label: "Road tax",
				SlabVariable: types.FieldExShowroom, SlabValueType: types.SlabValuePercentage, Basis: types.FieldExShowroom,
				Ranges: []types.SlabRange{{Min: dec("0"), Percentage: dec(pct)}},
			},
		},
	}
}

// insuranceRule is the fallback rule re-scoped to an insurer.
func insuranceRule(insurer string) *types.RuleDocument {
	doc := rules.FallbackInsuranceRule()
	doc.StateCode = "MH"
	doc.InsurerName = insurer
	doc.DisplayID = ""
	return doc
}

func mhScope(insurer string) *types.Scope {
	return &types.Scope{StateCode: "MH", VehicleType: "TWO_WHEELER", InsurerName: insurer}
}
