package db

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/ratekeeper/internal/rules"
	"github.com/solatis/ratekeeper/internal/types"
)

func newTestRuleStore(t *testing.T) *RuleStore {
	t.Helper()
	return NewRuleStore(openTestQueries(t), rules.NewEngine(0).Validate)
}

func testInsuranceRule(insurer string, odAmount int64) *types.RuleDocument {
	return &types.RuleDocument{
		Kind:        types.RuleKindInsurance,
		Name:        "Two wheeler " + insurer,
		StateCode:   "MH",
		VehicleType: "TWO_WHEELER",
		InsurerName: insurer,
		ODComponents: []types.Component{
			{ID: "od", Type: types.ComponentFixed, Label: "Own Damage", Amount: decimal.NewFromInt(odAmount)},
		},
	}
}

func TestRuleStore_Create(t *testing.T) {
	ctx := context.Background()
	store := newTestRuleStore(t)

	created, err := store.Create(ctx, testInsuranceRule("Acme", 1000))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, types.RuleStatusInactive, created.Status)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Two wheeler Acme", got.Name)
	assert.True(t, got.ODComponents[0].Amount.Equal(decimal.NewFromInt(1000)))

	_, err = store.Get(ctx, types.NewRuleID())
	assert.ErrorIs(t, err, types.ErrRuleNotFound)
}

func TestRuleStore_CreateRejectsInvalid(t *testing.T) {
	store := newTestRuleStore(t)
	doc := testInsuranceRule("Acme", 1000)
	doc.ODComponents = append(doc.ODComponents, doc.ODComponents[0])

	_, err := store.Create(context.Background(), doc)
	assert.ErrorIs(t, err, types.ErrDuplicateComponentID)
}

func TestRuleStore_UpdateVersions(t *testing.T) {
	ctx := context.Background()
	store := newTestRuleStore(t)

	created, err := store.Create(ctx, testInsuranceRule("Acme", 1000))
	require.NoError(t, err)

	edit := *created
	edit.ODComponents = []types.Component{
		{ID: "od", Type: types.ComponentFixed, Label: "Own Damage", Amount: decimal.NewFromInt(1200)},
	}
	updated, err := store.Update(ctx, &edit, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// Stale writer loses.
	_, err = store.Update(ctx, &edit, 1)
	assert.ErrorIs(t, err, types.ErrVersionConflict)

	v1, err := store.GetVersion(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.True(t, v1.ODComponents[0].Amount.Equal(decimal.NewFromInt(1000)))

	v2, err := store.GetVersion(ctx, created.ID, 2)
	require.NoError(t, err)
	assert.True(t, v2.ODComponents[0].Amount.Equal(decimal.NewFromInt(1200)))

	_, err = store.GetVersion(ctx, created.ID, 3)
	assert.ErrorIs(t, err, types.ErrRuleNotFound)
}

func TestRuleStore_UpdateKindFixed(t *testing.T) {
	ctx := context.Background()
	store := newTestRuleStore(t)

	created, err := store.Create(ctx, testInsuranceRule("Acme", 1000))
	require.NoError(t, err)

	edit := *created
	edit.Kind = types.RuleKindRegistration
	_, err = store.Update(ctx, &edit, 1)
	assert.ErrorIs(t, err, types.ErrInvalidRuleDocument)
}

func TestRuleStore_ActiveScope(t *testing.T) {
	ctx := context.Background()
	store := newTestRuleStore(t)

	first := testInsuranceRule("Acme", 1000)
	first.Status = types.RuleStatusActive
	active, err := store.Create(ctx, first)
	require.NoError(t, err)

	found, err := store.FindActive(ctx, types.RuleKindInsurance, "MH/TWO_WHEELER/ACME")
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)

	t.Run("second active create conflicts", func(t *testing.T) {
		dup := testInsuranceRule("acme", 900)
		dup.Status = types.RuleStatusActive
		_, err := store.Create(ctx, dup)
		assert.ErrorIs(t, err, types.ErrActiveScopeConflict)
	})

	t.Run("activation conflicts until the old rule is deactivated", func(t *testing.T) {
		other, err := store.Create(ctx, testInsuranceRule("Acme", 900))
		require.NoError(t, err)

		_, err = store.SetStatus(ctx, other.ID, types.RuleStatusActive, other.Version)
		require.ErrorIs(t, err, types.ErrActiveScopeConflict)

		_, err = store.SetStatus(ctx, active.ID, types.RuleStatusInactive, active.Version)
		require.NoError(t, err)

		activated, err := store.SetStatus(ctx, other.ID, types.RuleStatusActive, other.Version)
		require.NoError(t, err)
		assert.Equal(t, 2, activated.Version)

		found, err := store.FindActive(ctx, types.RuleKindInsurance, "MH/TWO_WHEELER/ACME")
		require.NoError(t, err)
		assert.Equal(t, other.ID, found.ID)
	})

	t.Run("other insurer is a different scope", func(t *testing.T) {
		doc := testInsuranceRule("Zenith", 800)
		doc.Status = types.RuleStatusActive
		_, err := store.Create(ctx, doc)
		assert.NoError(t, err)
	})

	t.Run("no active rule", func(t *testing.T) {
		_, err := store.FindActive(ctx, types.RuleKindInsurance, "KA/TWO_WHEELER/ACME")
		assert.ErrorIs(t, err, types.ErrRuleNotFound)
	})
}

func TestRuleStore_Patch(t *testing.T) {
	ctx := context.Background()
	store := newTestRuleStore(t)

	created, err := store.Create(ctx, testInsuranceRule("Acme", 1000))
	require.NoError(t, err)

	patched, err := store.Patch(ctx, created.ID, 1, []byte(`[
		{"op": "replace", "path": "/od_components/0/amount", "value": "1500"},
		{"op": "replace", "path": "/name", "value": "Patched"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, patched.Version)
	assert.Equal(t, "Patched", patched.Name)
	assert.True(t, patched.ODComponents[0].Amount.Equal(decimal.NewFromInt(1500)))

	tests := []struct {
		name    string
		version int
		patch   string
		wantErr error
	}{
		{name: "stale version", version: 1, patch: `[]`, wantErr: types.ErrVersionConflict},
		{name: "malformed patch", version: 2, patch: `{"op": "add"}`, wantErr: types.ErrInvalidRuleDocument},
		{name: "failing test op", version: 2, patch: `[{"op": "test", "path": "/name", "value": "nope"}]`, wantErr: types.ErrInvalidRuleDocument},
		{name: "id change", version: 2, patch: `[{"op": "replace", "path": "/id", "value": "other"}]`, wantErr: types.ErrInvalidRuleDocument},
		{name: "patch breaks document", version: 2, patch: `[{"op": "replace", "path": "/od_components/0/type", "value": "BOGUS"}]`, wantErr: types.ErrUnknownComponentType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Patch(ctx, created.ID, tt.version, []byte(tt.patch))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Patch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRuleStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestRuleStore(t)

	_, err := store.Create(ctx, testInsuranceRule("Acme", 1000))
	require.NoError(t, err)
	_, err = store.Create(ctx, &types.RuleDocument{
		Kind:        types.RuleKindRegistration,
		StateCode:   "MH",
		VehicleType: "TWO_WHEELER",
		Components: []types.Component{
			{ID: "fee", Type: types.ComponentFixed, Label: "Fee", Amount: decimal.NewFromInt(300)},
		},
	})
	require.NoError(t, err)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	reg, err := store.List(ctx, types.RuleKindRegistration)
	require.NoError(t, err)
	require.Len(t, reg, 1)
	assert.Equal(t, "MH/TWO_WHEELER", reg[0].ScopeKey())
}

func TestRuleStore_CreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := newTestRuleStore(t)

	first, err := store.Create(ctx, testInsuranceRule("Acme", 1000))
	require.NoError(t, err)

	dup := testInsuranceRule("Other", 500)
	dup.ID = first.ID
	_, err = store.Create(ctx, dup)
	assert.ErrorIs(t, err, types.ErrRuleExists)
	assert.NotErrorIs(t, err, types.ErrActiveScopeConflict)
}

func TestStoreError_Postgres(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "active scope index",
			err:  &pq.Error{Code: "23505", Constraint: activeScopeIndex},
			want: types.ErrActiveScopeConflict,
		},
		{
			name: "primary key",
			err:  &pq.Error{Code: "23505", Constraint: "rule_documents_pkey"},
			want: types.ErrRuleExists,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeError(tt.err, "insert rule document")
			if !errors.Is(err, tt.want) {
				t.Errorf("storeError() = %v, want %v", err, tt.want)
			}
		})
	}

	err := storeError(&pq.Error{Code: "23503"}, "insert rule document")
	if errors.Is(err, types.ErrActiveScopeConflict) || errors.Is(err, types.ErrRuleExists) {
		t.Errorf("storeError() = %v, want driver error unchanged", err)
	}
}
