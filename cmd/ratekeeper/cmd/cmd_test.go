package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/solatis/ratekeeper/internal/rules"
	"github.com/solatis/ratekeeper/internal/types"
)

func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func scenario() types.EvaluationContext {
	return types.EvaluationContext{
		ExShowroomPrice: decimal.NewFromInt(100000),
		EngineCC:        decimal.NewFromInt(110),
		FuelType:        types.FuelPetrol,
		Tenures:         map[types.TenureCategory]int{types.TenureOD: 1, types.TenureTP: 5},
	}
}

// newQuoteCommand builds a detached insurance quote command so tests do
// not share flag state through rootCmd.
func newQuoteCommand(t *testing.T, flags map[string]string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	c := &cobra.Command{Use: "insurance"}
	addQuoteFlags(c)
	c.Flags().IntSlice("selection", nil, "")
	for name, value := range flags {
		if err := c.Flags().Set(name, value); err != nil {
			t.Fatalf("set --%s: %v", name, err)
		}
	}
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetContext(context.Background())
	return c, &out
}

func TestQuoteInsuranceOffline(t *testing.T) {
	dir := t.TempDir()
	rulePath := writeJSON(t, dir, "rule.json", rules.FallbackInsuranceRule())
	ctxPath := writeJSON(t, dir, "context.json", scenario())

	tests := []struct {
		name    string
		flags   map[string]string
		payable string
	}{
		{"default selection", map[string]string{"rule": rulePath, "context": ctxPath}, "6561"},
		{"mandatory only", map[string]string{"rule": rulePath, "context": ctxPath, "selection": "1"}, "6337"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, out := newQuoteCommand(t, tt.flags)
			if err := runQuoteInsurance(c, nil); err != nil {
				t.Fatalf("runQuoteInsurance: %v", err)
			}
			var got struct {
				Payable decimal.Decimal `json:"payable"`
			}
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("decode output: %v\n%s", err, out.String())
			}
			if !got.Payable.Equal(decimal.RequireFromString(tt.payable)) {
				t.Errorf("payable = %s, want %s", got.Payable, tt.payable)
			}
		})
	}
}

func TestQuoteInsuranceRejectsRegistrationRule(t *testing.T) {
	dir := t.TempDir()
	doc := rules.FallbackInsuranceRule()
	doc.Kind = types.RuleKindRegistration
	rulePath := writeJSON(t, dir, "rule.json", doc)
	ctxPath := writeJSON(t, dir, "context.json", scenario())

	c, _ := newQuoteCommand(t, map[string]string{"rule": rulePath, "context": ctxPath})
	if err := runQuoteInsurance(c, nil); err == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestQuoteMissingFile(t *testing.T) {
	c, _ := newQuoteCommand(t, map[string]string{
		"rule":    filepath.Join(t.TempDir(), "missing.json"),
		"context": filepath.Join(t.TempDir(), "missing.json"),
	})
	if err := runQuoteInsurance(c, nil); err == nil {
		t.Fatal("expected error for missing rule file")
	}
}
