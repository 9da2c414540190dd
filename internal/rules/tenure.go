// internal/rules/tenure.go
package rules

import (
	"fmt"
	"slices"

	"github.com/solatis/ratekeeper/internal/types"
)

// Default tenure options when a rule configures none.
var defaultTenures = map[types.TenureCategory]types.TenureOption{
	types.TenureOD:     {Default: 1, Allowed: []int{1, 3, 5}},
	types.TenureTP:     {Default: 5, Allowed: []int{1, 3, 5}},
	types.TenureAddons: {Default: 1, Allowed: []int{1, 3, 5}},
}

// tenureDefaults merges the document's tenure config over the defaults and
// validates every option.
func tenureDefaults(doc *types.RuleDocument) (map[types.TenureCategory]types.TenureOption, error) {
	out := make(map[types.TenureCategory]types.TenureOption, len(defaultTenures)+1)
	if doc.Kind == types.RuleKindInsurance {
		for cat, opt := range defaultTenures {
			out[cat] = opt
		}
	} else {
		bh := doc.BHTenure
		if bh == 0 {
			bh = defaultBHTenure
		}
		out[types.TenureBH] = types.TenureOption{Default: bh, Allowed: []int{bh}}
	}

	for cat, opt := range doc.TenureConfig {
		switch cat {
		case types.TenureOD, types.TenureTP, types.TenureAddons:
			if doc.Kind != types.RuleKindInsurance {
				return nil, fmt.Errorf("%w: %s on a registration rule", types.ErrInvalidTenureConfig, cat)
			}
		case types.TenureBH:
			if doc.Kind != types.RuleKindRegistration {
				return nil, fmt.Errorf("%w: BH on an insurance rule", types.ErrInvalidTenureConfig)
			}
		default:
			return nil, fmt.Errorf("%w: unknown category %q", types.ErrInvalidTenureConfig, cat)
		}
		if len(opt.Allowed) == 0 {
			return nil, fmt.Errorf("%w: %s has no allowed tenures", types.ErrInvalidTenureConfig, cat)
		}
		for _, y := range opt.Allowed {
			if y <= 0 {
				return nil, fmt.Errorf("%w: %s tenure %d not positive", types.ErrInvalidTenureConfig, cat, y)
			}
		}
		if !slices.Contains(opt.Allowed, opt.Default) {
			return nil, fmt.Errorf("%w: %s default %d not in allowed", types.ErrInvalidTenureConfig, cat, opt.Default)
		}
		out[cat] = types.TenureOption{Default: opt.Default, Allowed: slices.Clone(opt.Allowed)}
	}
	return out, nil
}

// resolveTenure returns the selected tenure for a category, or the default
// when the context selects none.
func (d *CompiledDocument) resolveTenure(ctx types.EvaluationContext, cat types.TenureCategory) (int, error) {
	opt, ok := d.tenures[cat]
	if !ok {
		return 0, fmt.Errorf("%w: no %s tenure for %s rules", types.ErrInvalidTenure, cat, d.Kind)
	}
	requested, ok := ctx.Tenures[cat]
	if !ok {
		return opt.Default, nil
	}
	if !slices.Contains(opt.Allowed, requested) {
		return 0, &types.InvalidTenureError{
			Category:  cat,
			Requested: requested,
			Allowed:   slices.Clone(opt.Allowed),
		}
	}
	return requested, nil
}

// Tenures returns the tenure options of the document.
func (d *CompiledDocument) Tenures() map[types.TenureCategory]types.TenureOption {
	out := make(map[types.TenureCategory]types.TenureOption, len(d.tenures))
	for cat, opt := range d.tenures {
		out[cat] = types.TenureOption{Default: opt.Default, Allowed: slices.Clone(opt.Allowed)}
	}
	return out
}
