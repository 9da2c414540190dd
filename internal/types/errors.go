package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for ratekeeper operations.
var (
	// ErrDuplicateComponentID indicates two nodes share an id within one document.
	ErrDuplicateComponentID = errors.New("duplicate component id")

	// ErrMissingComponentID indicates a node without an id.
	ErrMissingComponentID = errors.New("component id is required")

	// ErrUnknownComponentType indicates an unrecognised component type.
	ErrUnknownComponentType = errors.New("unknown component type")

	// ErrUnknownField indicates a basis or variable outside the known fields.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownTarget indicates a target_component_id that names no component.
	ErrUnknownTarget = errors.New("unknown target component")

	// ErrBasisUnavailable indicates a register basis read before it exists.
	ErrBasisUnavailable = errors.New("basis not available in this section")

	// ErrInvalidSlab indicates empty, inverted or negative slab ranges.
	ErrInvalidSlab = errors.New("invalid slab definition")

	// ErrInvalidSwitch indicates a switch without a variable or cases.
	ErrInvalidSwitch = errors.New("invalid switch definition")

	// ErrInvalidOperator indicates an unknown or incompatible operator.
	ErrInvalidOperator = errors.New("invalid operator for field type")

	// ErrInvalidExpression indicates a CEL expression that fails to compile.
	ErrInvalidExpression = errors.New("invalid predicate expression")

	// ErrNegativeAmount indicates a negative authored amount or percentage.
	ErrNegativeAmount = errors.New("negative amount")

	// ErrCoercionFailed indicates an authored literal could not be read as the field kind.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrTreeTooDeep indicates nesting beyond MaxTreeDepth.
	ErrTreeTooDeep = errors.New("component tree exceeds maximum depth")

	// ErrTooManyComponents indicates more than MaxComponents nodes.
	ErrTooManyComponents = errors.New("component tree has too many components")

	// ErrTooManyRanges indicates a slab with more than MaxSlabRanges ranges.
	ErrTooManyRanges = errors.New("slab has too many ranges")

	// ErrTooManyCases indicates a switch with more than MaxSwitchCases cases.
	ErrTooManyCases = errors.New("switch has too many cases")

	// ErrTooManyInValues indicates an IN predicate with more than MaxInValues values.
	ErrTooManyInValues = errors.New("IN predicate has too many values")

	// ErrInvalidTenureConfig indicates a tenure config whose default is not allowed.
	ErrInvalidTenureConfig = errors.New("invalid tenure config")

	// ErrInvalidRuleDocument indicates document-level fields out of range.
	ErrInvalidRuleDocument = errors.New("invalid rule document")

	// ErrRuleKindMismatch indicates a document priced by the wrong engine.
	ErrRuleKindMismatch = errors.New("rule kind does not match engine")

	// ErrInvalidContext indicates an evaluation context that fails validation.
	ErrInvalidContext = errors.New("invalid evaluation context")

	// ErrInvalidTenure indicates a tenure selection outside the allowed set.
	ErrInvalidTenure = errors.New("invalid tenure selection")

	// ErrRuleResolution is matched by every RuleResolutionError.
	ErrRuleResolution = errors.New("rule resolution failed")

	// ErrUnmatchedTier indicates no slab range matched the key value.
	ErrUnmatchedTier = errors.New("no tier matched")

	// ErrUnhandledCase indicates no switch case matched and no default exists.
	ErrUnhandledCase = errors.New("no switch case matched")

	// ErrInvalidPredicateField indicates a field that could not be resolved at evaluation.
	ErrInvalidPredicateField = errors.New("field could not be resolved")

	// ErrUnresolvedTarget indicates a target component not resolved on the taken path.
	ErrUnresolvedTarget = errors.New("target component not resolved")

	// ErrMandatoryAddon indicates an attempt to deselect a mandatory add-on.
	ErrMandatoryAddon = errors.New("add-on is mandatory")

	// ErrAddonIndex indicates a selection index outside the add-on list.
	ErrAddonIndex = errors.New("add-on index out of range")

	// ErrRuleNotFound indicates no rule document matched the selector.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleInactive indicates live pricing against an INACTIVE document.
	ErrRuleInactive = errors.New("rule is not active")

	// ErrVersionConflict indicates an edit against a stale version.
	ErrVersionConflict = errors.New("rule version conflict")

	// ErrActiveScopeConflict indicates a second ACTIVE document for one scope.
	ErrActiveScopeConflict = errors.New("another rule is active for this scope")

	// ErrRuleExists indicates a create with an id that is already stored.
	ErrRuleExists = errors.New("rule already exists")

	// ErrQuoteNotFound indicates an unknown quote id.
	ErrQuoteNotFound = errors.New("quote not found")

	// ErrNoRuleSelector indicates a request without rule, rule_id or scope.
	ErrNoRuleSelector = errors.New("no rule selector given")

	// ErrDocumentTooLarge indicates an encoded document above MaxDocumentSize.
	ErrDocumentTooLarge = errors.New("rule document exceeds maximum size")
)

// ResolutionKind classifies a RuleResolutionError.
type ResolutionKind string

const (
	UnmatchedTier         ResolutionKind = "UNMATCHED_TIER"
	UnhandledCase         ResolutionKind = "UNHANDLED_CASE"
	InvalidPredicateField ResolutionKind = "INVALID_PREDICATE_FIELD"
	UnresolvedTarget      ResolutionKind = "UNRESOLVED_TARGET"
)

// RuleResolutionError is raised while walking a compiled tree.
// errors.Is matches ErrRuleResolution and the sentinel of its Kind.
type RuleResolutionError struct {
	Kind        ResolutionKind
	ComponentID string
	Detail      string
}

func (e *RuleResolutionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("rule resolution failed: %s at component %q", e.Kind, e.ComponentID)
	}
	return fmt.Sprintf("rule resolution failed: %s at component %q: %s", e.Kind, e.ComponentID, e.Detail)
}

// Is implements errors.Is matching against the kind sentinels.
func (e *RuleResolutionError) Is(target error) bool {
	switch target {
	case ErrRuleResolution:
		return true
	case ErrUnmatchedTier:
		return e.Kind == UnmatchedTier
	case ErrUnhandledCase:
		return e.Kind == UnhandledCase
	case ErrInvalidPredicateField:
		return e.Kind == InvalidPredicateField
	case ErrUnresolvedTarget:
		return e.Kind == UnresolvedTarget
	}
	return false
}

// InvalidTenureError reports a tenure selection outside the allowed set.
type InvalidTenureError struct {
	Category  TenureCategory
	Requested int
	Allowed   []int
}

func (e *InvalidTenureError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, a := range e.Allowed {
		allowed[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("invalid tenure selection: %s tenure %d not in [%s]",
		e.Category, e.Requested, strings.Join(allowed, ", "))
}

// Is implements errors.Is so callers can match ErrInvalidTenure.
func (e *InvalidTenureError) Is(target error) bool {
	return target == ErrInvalidTenure
}
