// internal/rules/selection.go
package rules

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

// Selection is an immutable set of selected add-on indices over an
// InsuranceResult's AddonPrices. Mandatory add-ons are always selected.
type Selection struct {
	selected []bool
}

// DefaultSelection selects every add-on.
func DefaultSelection(r *InsuranceResult) Selection {
	selected := make([]bool, len(r.AddonPrices))
	for i := range selected {
		selected[i] = true
	}
	return Selection{selected: selected}
}

// SelectionOf selects exactly the given indices plus every mandatory add-on.
func SelectionOf(r *InsuranceResult, indices []int) (Selection, error) {
	selected := make([]bool, len(r.AddonPrices))
	for _, p := range r.AddonPrices {
		selected[p.Index] = p.Mandatory
	}
	for _, i := range indices {
		if i < 0 || i >= len(selected) {
			return Selection{}, fmt.Errorf("%w: %d", types.ErrAddonIndex, i)
		}
		selected[i] = true
	}
	return Selection{selected: selected}, nil
}

// Selected reports whether add-on i is selected.
func (s Selection) Selected(i int) bool {
	return i >= 0 && i < len(s.selected) && s.selected[i]
}

// Indices returns the selected add-on indices in ascending order.
func (s Selection) Indices() []int {
	var out []int
	for i, ok := range s.selected {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// Toggle returns a new selection with add-on i flipped.
func (s Selection) Toggle(r *InsuranceResult, i int) (Selection, error) {
	if i < 0 || i >= len(r.AddonPrices) || i >= len(s.selected) {
		return s, fmt.Errorf("%w: %d", types.ErrAddonIndex, i)
	}
	if r.AddonPrices[i].Mandatory {
		return s, fmt.Errorf("%w: %s", types.ErrMandatoryAddon, r.AddonPrices[i].ComponentID)
	}
	next := slices.Clone(s.selected)
	next[i] = !next[i]
	return Selection{selected: next}, nil
}

// Payable returns mandatory_net plus the inclusive price of every selected
// add-on. Mandatory add-ons count whether or not they are selected.
func Payable(r *InsuranceResult, s Selection) decimal.Decimal {
	total := r.MandatoryNet
	for _, p := range r.AddonPrices {
		if p.Mandatory || s.Selected(p.Index) {
			total = total.Add(p.Inclusive)
		}
	}
	return total
}
