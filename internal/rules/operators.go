// internal/rules/operators.go
package rules

import (
	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Seven operators over coerced values:
 *   - eq/neq: Equality (numeric by value, text byte-exact)
 *   - lt/lte/gt/gte: Numeric ordering only
 *   - in: Membership with equality semantics
 *
 * Numeric equality uses decimal comparison, so "150" and "150.0" are equal.
 * Ordering operators on text fields are rejected at compile time by
 * operatorFor; Compare returns false for kind mismatches.
 */

// Operator is the compiled form of a condition operator.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
)

// operatorFor maps an authored operator to its compiled form and checks it
// against the field kind.
func operatorFor(op types.ConditionOperator, kind FieldKind) (Operator, error) {
	var compiled Operator
	switch op {
	case types.OperatorEquals, "":
		compiled = OpEq
	case types.OperatorNotEquals:
		compiled = OpNeq
	case types.OperatorLessThan:
		compiled = OpLt
	case types.OperatorLessOrEqual:
		compiled = OpLte
	case types.OperatorGreaterThan:
		compiled = OpGt
	case types.OperatorGreaterOrEqual:
		compiled = OpGte
	case types.OperatorIn:
		compiled = OpIn
	default:
		return OpUnspecified, types.ErrInvalidOperator
	}
	if kind == FieldKindText && compiled >= OpLt && compiled <= OpGte {
		return OpUnspecified, types.ErrInvalidOperator
	}
	return compiled, nil
}

// Compare applies the operator to compare value against target (or set for IN).
func Compare(op Operator, value, target Value, set []Value) bool {
	switch op {
	case OpEq:
		return compareEqual(value, target)
	case OpNeq:
		return !compareEqual(value, target)
	case OpLt, OpLte, OpGt, OpGte:
		c, ok := compareNumeric(value, target)
		if !ok {
			return false
		}
		switch op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	case OpIn:
		return compareIn(value, set)
	default:
		return false
	}
}

// compareEqual compares values of the same kind. Mixed kinds never match.
func compareEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == FieldKindNumeric {
		return a.Num.Equal(b.Num)
	}
	return a.Text == b.Text
}

// compareNumeric performs three-way numeric comparison (-1/0/1).
// ok is false when either operand is not numeric.
func compareNumeric(a, b Value) (c int, ok bool) {
	if a.Kind != FieldKindNumeric || b.Kind != FieldKindNumeric {
		return 0, false
	}
	return a.Num.Cmp(b.Num), true
}

// compareIn checks membership using equality semantics.
func compareIn(value Value, set []Value) bool {
	for _, elem := range set {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}
