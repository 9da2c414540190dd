// internal/rules/resolve.go
package rules

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Rule tree walker.
 *
 * resolveBlock is a pure fold over a compiled block:
 *
 *   resolveBlock(nodes, env, regs) -> (items, regs', error)
 *
 * Leaves emit one LineItem each with the unrounded per-year amount. The
 * registers carry every resolved component amount by id (composites record
 * their subtree sum) and the running total of the current section, which
 * feeds PREVIOUS_TAX_TOTAL. Registers are copied on write so a caller's
 * snapshot is never changed by a later branch.
 *
 * Failures are fatal for the whole evaluation. There is no partial result
 * and no zero fallback for unmatched tiers, unhandled switch cases or
 * unresolvable fields.
 */

// LineItem is one resolved leaf. Amount is per year and unrounded.
type LineItem struct {
	ComponentID string          `json:"component_id"`
	Label       string          `json:"label"`
	Meta        string          `json:"meta,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Mandatory   bool            `json:"mandatory,omitempty"`
}

// registers is the walker's accumulated state.
type registers struct {
	values  map[string]decimal.Decimal
	section decimal.Decimal
}

func newRegisters() registers {
	return registers{values: map[string]decimal.Decimal{}, section: decimal.Zero}
}

// record returns registers with id set to amount.
func (r registers) record(id string, amount decimal.Decimal) registers {
	values := make(map[string]decimal.Decimal, len(r.values)+1)
	for k, v := range r.values {
		values[k] = v
	}
	values[id] = amount
	return registers{values: values, section: r.section}
}

// addLeaf records a leaf and adds it to the section total.
func (r registers) addLeaf(id string, amount decimal.Decimal) registers {
	next := r.record(id, amount)
	next.section = r.section.Add(amount)
	return next
}

// startSection resets the running total and keeps resolved values.
func (r registers) startSection() registers {
	return registers{values: r.values, section: decimal.Zero}
}

// scaler adjusts a leaf amount after resolution. Registration uses it for
// PRO_RATA leaves; insurance leaves are never scaled.
type scaler func(l leaf, amount decimal.Decimal) (decimal.Decimal, string)

// env is the immutable evaluation environment of one walk.
type env struct {
	fields fieldSet
	scale  scaler
}

func (e env) fuel() types.FuelType {
	return e.fields.ctx.FuelType
}

// resolveBlock folds nodes left to right.
func resolveBlock(nodes []node, e env, regs registers) ([]LineItem, registers, error) {
	var items []LineItem
	for _, n := range nodes {
		resolved, next, err := resolveNode(n, e, regs)
		if err != nil {
			return nil, regs, err
		}
		items = append(items, resolved...)
		regs = next
	}
	return items, regs, nil
}

func resolveNode(n node, e env, regs registers) ([]LineItem, registers, error) {
	switch n := n.(type) {
	case *fixedNode:
		amount := n.amount
		meta := ""
		if v, ok := n.fuelMatrix[e.fuel()]; ok {
			amount = v
			meta = fmt.Sprintf("fuel %s", e.fuel())
		}
		return emitLeaf(n.leaf, amount, meta, e, regs)

	case *percentageNode:
		pct := n.percentage
		if v, ok := n.fuelMatrix[e.fuel()]; ok {
			pct = v
		}
		base, err := e.fields.resolve(n.id, n.basis, n.target, regs)
		if err != nil {
			return nil, regs, err
		}
		meta := fmt.Sprintf("%s%% of %s", pct, basisName(n.basis, n.target))
		return emitLeaf(n.leaf, percentOf(base.Num, pct), meta, e, regs)

	case *slabNode:
		return resolveSlab(n, e, regs)

	case *conditionalNode:
		ok, err := n.pred.eval(n.id, e.fields, regs)
		if err != nil {
			return nil, regs, err
		}
		block := n.elseBlock
		if ok {
			block = n.thenBlock
		}
		return resolveComposite(n.id, block, e, regs)

	case *switchNode:
		key, err := e.fields.resolve(n.id, n.key, "", regs)
		if err != nil {
			return nil, regs, err
		}
		for _, c := range n.cases {
			if compareEqual(key, c.match) {
				return resolveComposite(n.id, c.block, e, regs)
			}
		}
		if !n.hasDefault {
			return nil, regs, &types.RuleResolutionError{
				Kind:        types.UnhandledCase,
				ComponentID: n.id,
				Detail:      fmt.Sprintf("%s = %s matched no case", n.key, key),
			}
		}
		return resolveComposite(n.id, n.defaultBlock, e, regs)

	default:
		return nil, regs, fmt.Errorf("%w: %T", types.ErrUnknownComponentType, n)
	}
}

// emitLeaf scales, records and emits a leaf amount.
func emitLeaf(l leaf, amount decimal.Decimal, meta string, e env, regs registers) ([]LineItem, registers, error) {
	if e.scale != nil {
		var scaleMeta string
		amount, scaleMeta = e.scale(l, amount)
		meta = joinMeta(meta, scaleMeta)
	}
	item := LineItem{
		ComponentID: l.id,
		Label:       l.label,
		Meta:        meta,
		Amount:      amount,
		Mandatory:   l.mandatory,
	}
	return []LineItem{item}, regs.addLeaf(l.id, amount), nil
}

// resolveComposite resolves a chosen block and records its subtree sum
// under the composite id. The section total already includes the leaves.
func resolveComposite(id string, block []node, e env, regs registers) ([]LineItem, registers, error) {
	items, next, err := resolveBlock(block, e, regs)
	if err != nil {
		return nil, regs, err
	}
	return items, next.record(id, sumAmounts(items)), nil
}

func resolveSlab(n *slabNode, e env, regs registers) ([]LineItem, registers, error) {
	for _, r := range n.ranges {
		if len(r.fuels) > 0 && !slices.Contains(r.fuels, e.fuel()) {
			continue
		}
		key, err := e.fields.resolve(n.id, r.key, "", regs)
		if err != nil {
			return nil, regs, err
		}
		if key.Num.LessThan(r.min) {
			continue
		}
		if r.max.Valid && !key.Num.LessThan(r.max.Decimal) {
			continue
		}

		bounds := fmt.Sprintf("%s %s-%s", r.key, r.min, maxString(r.max))
		if !r.percent {
			return emitLeaf(n.leaf, r.amount, bounds, e, regs)
		}
		base, err := e.fields.resolve(n.id, n.basis, n.target, regs)
		if err != nil {
			return nil, regs, err
		}
		meta := fmt.Sprintf("%s, %s%% of %s", bounds, r.percentage, basisName(n.basis, n.target))
		return emitLeaf(n.leaf, percentOf(base.Num, r.percentage), meta, e, regs)
	}

	return nil, regs, &types.RuleResolutionError{
		Kind:        types.UnmatchedTier,
		ComponentID: n.id,
		Detail:      fmt.Sprintf("no range matched for fuel %s", e.fuel()),
	}
}

func basisName(basis types.Field, target string) string {
	if basis == types.FieldTargetComponent {
		return target
	}
	return string(basis)
}

func maxString(max decimal.NullDecimal) string {
	if !max.Valid {
		return "inf"
	}
	return max.Decimal.String()
}

func joinMeta(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "; " + b
	}
}
