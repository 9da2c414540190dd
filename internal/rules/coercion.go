// internal/rules/coercion.go
package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Type coercion for authored literals.
 *
 * Two-kind system: NUMERIC fields (prices, engine CC, ratings, register
 * bases) and TEXT fields (fuel type, registration type). Literals in rule
 * documents are strings (condition_value, match_value) and are coerced to
 * the kind of the field they are compared against at compile time, so a
 * badly authored literal fails the document rather than a quote.
 *
 * Type modes:
 *   - NUMERIC: Strict - trimmed decimal strings only, booleans rejected
 *   - TEXT: Exact - the literal is kept byte for byte
 */

// FieldKind is the comparison kind of a field.
type FieldKind int

const (
	FieldKindUnspecified FieldKind = iota
	FieldKindNumeric
	FieldKindText
)

func (k FieldKind) String() string {
	switch k {
	case FieldKindNumeric:
		return "numeric"
	case FieldKindText:
		return "text"
	default:
		return "unspecified"
	}
}

// Value is a coerced field or literal value.
type Value struct {
	Kind FieldKind
	Num  decimal.Decimal
	Text string
}

func numericValue(d decimal.Decimal) Value {
	return Value{Kind: FieldKindNumeric, Num: d}
}

func textValue(s string) Value {
	return Value{Kind: FieldKindText, Text: s}
}

// String renders the value for line item meta and error details.
func (v Value) String() string {
	if v.Kind == FieldKindNumeric {
		return v.Num.String()
	}
	return v.Text
}

// Coerce converts an authored literal to the expected field kind.
// Returns ErrCoercionFailed for impossible coercions.
func Coerce(raw string, kind FieldKind) (Value, error) {
	switch kind {
	case FieldKindNumeric:
		return coerceNumeric(raw)
	case FieldKindText:
		return textValue(raw), nil
	default:
		return Value{}, types.ErrCoercionFailed
	}
}

// coerceNumeric parses a decimal literal. Whitespace-only strings and
// booleans are not numbers.
func coerceNumeric(raw string) (Value, error) {
	v := strings.TrimSpace(raw)
	if v == "" || v == "true" || v == "false" {
		return Value{}, types.ErrCoercionFailed
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return Value{}, types.ErrCoercionFailed
	}
	return numericValue(d), nil
}

// coerceList splits an IN literal on commas and coerces each element.
func coerceList(raw string, kind FieldKind) ([]Value, error) {
	parts := strings.Split(raw, ",")
	if len(parts) > types.MaxInValues {
		return nil, types.ErrTooManyInValues
	}
	values := make([]Value, 0, len(parts))
	for _, p := range parts {
		if kind == FieldKindText {
			p = strings.TrimSpace(p)
		}
		v, err := Coerce(p, kind)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
