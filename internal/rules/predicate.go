// internal/rules/predicate.go
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Conditional predicates.
 *
 * Two authored forms compile to the same predicate interface:
 *   - structured: condition_variable, condition_operator, condition_value
 *   - expression: a CEL boolean expression over the context and registers
 *
 * CEL variables are doubles for numeric fields, strings for text fields,
 * plus section_total and the components map of resolved amounts. Optional
 * attributes that are absent are not bound, so reading one raises a CEL
 * error which surfaces as INVALID_PREDICATE_FIELD. A non-bool result does
 * the same. Expressions are type-checked at compile time; the check catches
 * unknown variables and non-bool output types before a document is stored.
 *
 * The environment is shared, so after checking, the compiler walks the AST
 * and holds every field variable to the same availability rules as the
 * structured form. Constant components["id"] keys are collected as targets:
 * unknown ids fail compilation, and ids not resolved on the taken path fail
 * evaluation with UNRESOLVED_TARGET.
 */

// celFieldNames maps context fields to their CEL variable names.
var celFieldNames = map[types.Field]string{
	types.FieldExShowroom:         "ex_showroom",
	types.FieldInvoiceBase:        "invoice_base",
	types.FieldIDV:                "idv",
	types.FieldEngineCC:           "engine_cc",
	types.FieldKWRating:           "kw_rating",
	types.FieldSeatingCapacity:    "seating_capacity",
	types.FieldGrossVehicleWeight: "gross_vehicle_weight",
	types.FieldFuelType:           "fuel_type",
	types.FieldRegType:            "reg_type",
	types.FieldODPremium:          "od_premium",
}

// celFields is the inverse of celFieldNames.
var celFields = func() map[string]types.Field {
	m := make(map[string]types.Field, len(celFieldNames))
	for field, name := range celFieldNames {
		m[name] = field
	}
	return m
}()

// celEnv is shared by every compiled expression. cel.Env is safe for
// concurrent use once built.
var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.CrossTypeNumericComparisons(true),
		cel.Variable("section_total", cel.DoubleType),
		cel.Variable("components", cel.MapType(cel.StringType, cel.DoubleType)),
	}
	for field, name := range celFieldNames {
		if fieldKinds[field] == FieldKindText {
			opts = append(opts, cel.Variable(name, cel.StringType))
		} else {
			opts = append(opts, cel.Variable(name, cel.DoubleType))
		}
	}
	return cel.NewEnv(opts...)
})

// predicate decides which block of a CONDITIONAL resolves.
type predicate interface {
	eval(id string, fields fieldSet, regs registers) (bool, error)
}

// comparison is a structured predicate.
type comparison struct {
	field  types.Field
	target string
	op     Operator
	value  Value
	set    []Value
}

func (c comparison) eval(id string, fields fieldSet, regs registers) (bool, error) {
	v, err := fields.resolve(id, c.field, c.target, regs)
	if err != nil {
		return false, err
	}
	return Compare(c.op, v, c.value, c.set), nil
}

// expression is a compiled CEL predicate.
type expression struct {
	source  string
	program cel.Program
	fields  []types.Field
	targets []string
}

func (e expression) eval(id string, fields fieldSet, regs registers) (bool, error) {
	for _, target := range e.targets {
		if _, ok := regs.values[target]; !ok {
			return false, &types.RuleResolutionError{
				Kind:        types.UnresolvedTarget,
				ComponentID: id,
				Detail:      fmt.Sprintf("target %q was not resolved on this path", target),
			}
		}
	}
	out, _, err := e.program.Eval(fields.activation(regs))
	if err != nil {
		return false, &types.RuleResolutionError{
			Kind:        types.InvalidPredicateField,
			ComponentID: id,
			Detail:      fmt.Sprintf("expression %q: %v", e.source, err),
		}
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, &types.RuleResolutionError{
			Kind:        types.InvalidPredicateField,
			ComponentID: id,
			Detail:      fmt.Sprintf("expression %q did not yield a bool", e.source),
		}
	}
	return b, nil
}

// compileExpression parses and type-checks a CEL predicate.
func compileExpression(source string) (expression, error) {
	env, err := celEnv()
	if err != nil {
		return expression{}, fmt.Errorf("%w: %v", types.ErrInvalidExpression, err)
	}
	ast, iss := env.Parse(source)
	if iss != nil && iss.Err() != nil {
		return expression{}, fmt.Errorf("%w: %v", types.ErrInvalidExpression, iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return expression{}, fmt.Errorf("%w: %v", types.ErrInvalidExpression, iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return expression{}, fmt.Errorf("%w: %q must return bool, got %s",
			types.ErrInvalidExpression, source, checked.OutputType())
	}
	prg, err := env.Program(checked)
	if err != nil {
		return expression{}, fmt.Errorf("%w: %v", types.ErrInvalidExpression, err)
	}
	fields, targets := expressionReferences(checked.NativeRep().Expr())
	return expression{source: source, program: prg, fields: fields, targets: targets}, nil
}

// expressionReferences returns the context fields an expression reads and
// the constant keys it indexes components with.
func expressionReferences(root celast.Expr) ([]types.Field, []string) {
	var fields []types.Field
	var targets []string
	seenField := make(map[types.Field]bool)
	seenTarget := make(map[string]bool)

	addTarget := func(id string) {
		if !seenTarget[id] {
			seenTarget[id] = true
			targets = append(targets, id)
		}
	}
	isComponents := func(e celast.Expr) bool {
		return e.Kind() == celast.IdentKind && e.AsIdent() == "components"
	}

	celast.PostOrderVisit(root, celast.NewExprVisitor(func(e celast.Expr) {
		switch e.Kind() {
		case celast.IdentKind:
			if field, ok := celFields[e.AsIdent()]; ok && !seenField[field] {
				seenField[field] = true
				fields = append(fields, field)
			}
		case celast.SelectKind:
			sel := e.AsSelect()
			if !sel.IsTestOnly() && isComponents(sel.Operand()) {
				addTarget(sel.FieldName())
			}
		case celast.CallKind:
			call := e.AsCall()
			if call.FunctionName() != operators.Index || len(call.Args()) != 2 {
				return
			}
			key := call.Args()[1]
			if !isComponents(call.Args()[0]) || key.Kind() != celast.LiteralKind {
				return
			}
			if id, ok := key.AsLiteral().Value().(string); ok {
				addTarget(id)
			}
		}
	}))
	return fields, targets
}
