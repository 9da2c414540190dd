package db

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/ratekeeper/internal/types"
)

func TestQuoteStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	store := NewQuoteStore(openTestQueries(t))

	evalCtx := map[string]any{"ex_showroom_price": "100000", "engine_cc": "110"}
	result := map[string]any{"total_premium": "6561"}
	ruleID := types.NewRuleID()

	id, err := store.Save(ctx, types.QuoteInsurance, ruleID, 3, evalCtx, result)
	require.NoError(t, err)
	assert.False(t, types.QuoteIDTime(id).IsZero())

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.QuoteInsurance, got.Kind)
	assert.Equal(t, ruleID, got.RuleID)
	assert.Equal(t, 3, got.RuleVersion)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(got.Result, &decoded))
	assert.Equal(t, "6561", decoded["total_premium"])
}

func TestQuoteStore_NotFound(t *testing.T) {
	store := NewQuoteStore(openTestQueries(t))

	_, err := store.Get(context.Background(), types.NewQuoteID())
	assert.ErrorIs(t, err, types.ErrQuoteNotFound)

	_, err = store.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, types.ErrQuoteNotFound)
}
