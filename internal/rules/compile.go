// internal/rules/compile.go
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.RuleDocument to CompiledDocument: a closed set of node
 * types with coerced literals, compiled predicates, checked field
 * availability and resolved document defaults.
 *
 * Compilation workflow:
 *   1. Resolve document defaults (GST 18, IDV 95, tenures, registration)
 *   2. Walk every section, enforcing depth and count limits
 *   3. Coerce condition and switch literals to the variable's kind
 *   4. Check that every target_component_id names another component
 *
 * Component ids are unique across the whole document, sections included,
 * because the registers are keyed by id and TP or add-on components may
 * target OD ones.
 *
 * is_mandatory is inherited: every leaf under a mandatory composite is
 * mandatory. Only add-on leaves use the flag.
 */

const (
	defaultGSTPercentage = 18
	defaultIDVPercentage = 95
	defaultStateTenure   = 15
	defaultBHTenure      = 2
	defaultCompanyFactor = 2
)

// node is one compiled rule tree node.
type node interface {
	nodeID() string
}

// leaf carries what every resolved line item needs.
type leaf struct {
	id        string
	label     string
	mandatory bool
	treatment types.VariantTreatment
}

func (l leaf) nodeID() string { return l.id }

type fixedNode struct {
	leaf
	amount     decimal.Decimal
	fuelMatrix map[types.FuelType]decimal.Decimal
}

type percentageNode struct {
	leaf
	percentage decimal.Decimal
	basis      types.Field
	target     string
	fuelMatrix map[types.FuelType]decimal.Decimal
}

type slabRange struct {
	id         string
	min        decimal.Decimal
	max        decimal.NullDecimal
	amount     decimal.Decimal
	percentage decimal.Decimal
	fuels      []types.FuelType
	key        types.Field
	percent    bool
}

type slabNode struct {
	leaf
	basis  types.Field
	target string
	ranges []slabRange
}

type conditionalNode struct {
	id        string
	pred      predicate
	thenBlock []node
	elseBlock []node
}

func (n *conditionalNode) nodeID() string { return n.id }

type switchCase struct {
	id    string
	match Value
	block []node
}

type switchNode struct {
	id           string
	key          types.Field
	cases        []switchCase
	defaultBlock []node
	hasDefault   bool
}

func (n *switchNode) nodeID() string { return n.id }

// CompiledDocument is a validated rule document ready for evaluation.
// It is immutable and safe for concurrent use.
type CompiledDocument struct {
	RuleID      types.RuleID
	Version     int
	Kind        types.RuleKind
	Fingerprint string

	od         []node
	tp         []node
	addons     []node
	components []node

	tenures           map[types.TenureCategory]types.TenureOption
	gst               decimal.Decimal
	idvPercentage     decimal.Decimal
	ncbPercentage     decimal.NullDecimal
	discount          *types.Discount
	stateTenure       int
	bhTenure          int
	companyMultiplier decimal.Decimal
}

// compiler tracks document-wide state during a single Compile call.
type compiler struct {
	kind    types.RuleKind
	ids     map[string]bool
	targets map[string]string   // referrer id -> target id
	reads   map[string][]string // expression id -> component ids it indexes
	count   int
}

// Compile validates and pre-processes a rule document for evaluation.
func Compile(doc *types.RuleDocument) (*CompiledDocument, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", types.ErrInvalidRuleDocument)
	}
	if doc.Kind != types.RuleKindInsurance && doc.Kind != types.RuleKindRegistration {
		return nil, fmt.Errorf("%w: unknown kind %q", types.ErrInvalidRuleDocument, doc.Kind)
	}

	compiled := &CompiledDocument{
		RuleID:  doc.ID,
		Version: doc.Version,
		Kind:    doc.Kind,
	}
	if err := compiled.resolveDefaults(doc); err != nil {
		return nil, err
	}

	c := &compiler{
		kind:    doc.Kind,
		ids:     make(map[string]bool),
		targets: make(map[string]string),
		reads:   make(map[string][]string),
	}

	var err error
	if doc.Kind == types.RuleKindInsurance {
		if compiled.od, err = c.compileBlock(doc.ODComponents, sectionOD, 1, false); err != nil {
			return nil, err
		}
		if compiled.tp, err = c.compileBlock(doc.TPComponents, sectionTP, 1, false); err != nil {
			return nil, err
		}
		if compiled.addons, err = c.compileBlock(doc.Addons, sectionAddons, 1, false); err != nil {
			return nil, err
		}
	} else {
		if compiled.components, err = c.compileBlock(doc.Components, sectionRegistration, 1, false); err != nil {
			return nil, err
		}
	}

	for referrer, target := range c.targets {
		if target == referrer || !c.ids[target] {
			return nil, fmt.Errorf("%w: %q referenced by %q", types.ErrUnknownTarget, target, referrer)
		}
	}
	for referrer, targets := range c.reads {
		for _, target := range targets {
			if !c.ids[target] {
				return nil, fmt.Errorf("%w: components[%q] in expression of %q", types.ErrUnknownTarget, target, referrer)
			}
		}
	}
	return compiled, nil
}

// resolveDefaults validates document-level fields and fills defaults.
func (d *CompiledDocument) resolveDefaults(doc *types.RuleDocument) error {
	d.gst = decimal.NewFromInt(defaultGSTPercentage)
	if doc.GSTPercentage.Valid {
		d.gst = doc.GSTPercentage.Decimal
	}
	if d.gst.IsNegative() || d.gst.GreaterThan(hundred) {
		return fmt.Errorf("%w: gst_percentage %s outside [0, 100]", types.ErrInvalidRuleDocument, d.gst)
	}

	tenures, err := tenureDefaults(doc)
	if err != nil {
		return err
	}
	d.tenures = tenures

	if doc.Kind == types.RuleKindInsurance {
		d.idvPercentage = decimal.NewFromInt(defaultIDVPercentage)
		if doc.IDVPercentage.Valid {
			d.idvPercentage = doc.IDVPercentage.Decimal
		}
		if !d.idvPercentage.IsPositive() {
			return fmt.Errorf("%w: idv_percentage must be positive", types.ErrInvalidRuleDocument)
		}
		if doc.NCBPercentage.Valid {
			if err := checkPercentage("ncb_percentage", doc.NCBPercentage.Decimal); err != nil {
				return err
			}
			d.ncbPercentage = doc.NCBPercentage
		}
		if doc.Discount != nil {
			if err := checkDiscount(doc.Discount); err != nil {
				return fmt.Errorf("%w: %v", types.ErrInvalidRuleDocument, err)
			}
			discount := *doc.Discount
			d.discount = &discount
		}
		return nil
	}

	d.stateTenure = doc.StateTenure
	if d.stateTenure == 0 {
		d.stateTenure = defaultStateTenure
	}
	d.bhTenure = doc.BHTenure
	if d.bhTenure == 0 {
		d.bhTenure = defaultBHTenure
	}
	if d.stateTenure < 0 || d.bhTenure < 0 {
		return fmt.Errorf("%w: registration tenures must be positive", types.ErrInvalidRuleDocument)
	}
	d.companyMultiplier = decimal.NewFromInt(defaultCompanyFactor)
	if doc.CompanyMultiplier.Valid {
		d.companyMultiplier = doc.CompanyMultiplier.Decimal
	}
	if !d.companyMultiplier.IsPositive() {
		return fmt.Errorf("%w: company_multiplier must be positive", types.ErrInvalidRuleDocument)
	}
	return nil
}

func checkPercentage(name string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s %s outside [0, 100]", types.ErrInvalidRuleDocument, name, v)
	}
	return nil
}

// compileBlock compiles a list of components at the given depth.
func (c *compiler) compileBlock(components []types.Component, sec section, depth int, mandatory bool) ([]node, error) {
	if len(components) == 0 {
		return nil, nil
	}
	if depth > types.MaxTreeDepth {
		return nil, types.ErrTreeTooDeep
	}
	nodes := make([]node, 0, len(components))
	for i := range components {
		n, err := c.compileComponent(&components[i], sec, depth, mandatory)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// compileComponent validates one component and its subtree.
func (c *compiler) compileComponent(comp *types.Component, sec section, depth int, mandatory bool) (node, error) {
	if comp.ID == "" {
		return nil, fmt.Errorf("%w in %s", types.ErrMissingComponentID, sec)
	}
	if c.ids[comp.ID] {
		return nil, fmt.Errorf("%w: %q", types.ErrDuplicateComponentID, comp.ID)
	}
	c.ids[comp.ID] = true
	c.count++
	if c.count > types.MaxComponents {
		return nil, types.ErrTooManyComponents
	}

	mandatory = mandatory || comp.IsMandatory
	wrap := func(err error) error {
		return fmt.Errorf("component %q: %w", comp.ID, err)
	}

	switch comp.Type {
	case types.ComponentFixed:
		n, err := c.compileFixed(comp, mandatory)
		if err != nil {
			return nil, wrap(err)
		}
		return n, nil
	case types.ComponentPercentage:
		n, err := c.compilePercentage(comp, sec, mandatory)
		if err != nil {
			return nil, wrap(err)
		}
		return n, nil
	case types.ComponentSlab:
		n, err := c.compileSlab(comp, sec, mandatory)
		if err != nil {
			return nil, wrap(err)
		}
		return n, nil
	case types.ComponentConditional:
		return c.compileConditional(comp, sec, depth, mandatory)
	case types.ComponentSwitch:
		return c.compileSwitch(comp, sec, depth, mandatory)
	default:
		return nil, wrap(fmt.Errorf("%w: %q", types.ErrUnknownComponentType, comp.Type))
	}
}

func (c *compiler) leafFor(comp *types.Component, mandatory bool) (leaf, error) {
	treatment := comp.VariantTreatment
	if treatment == "" {
		treatment = types.TreatmentNone
		if comp.Type == types.ComponentSlab {
			treatment = types.TreatmentProRata
		}
	}
	if treatment != types.TreatmentNone && treatment != types.TreatmentProRata {
		return leaf{}, fmt.Errorf("%w: variant_treatment %q", types.ErrInvalidRuleDocument, treatment)
	}
	return leaf{id: comp.ID, label: comp.Label, mandatory: mandatory, treatment: treatment}, nil
}

func checkFuelMatrix(m map[types.FuelType]decimal.Decimal) error {
	for fuel, v := range m {
		switch fuel {
		case types.FuelPetrol, types.FuelDiesel, types.FuelEV, types.FuelCNG:
		default:
			return fmt.Errorf("%w: fuel_matrix key %q", types.ErrInvalidRuleDocument, fuel)
		}
		if v.IsNegative() {
			return types.ErrNegativeAmount
		}
	}
	return nil
}

func (c *compiler) compileFixed(comp *types.Component, mandatory bool) (node, error) {
	l, err := c.leafFor(comp, mandatory)
	if err != nil {
		return nil, err
	}
	if comp.Amount.IsNegative() {
		return nil, types.ErrNegativeAmount
	}
	if err := checkFuelMatrix(comp.FuelMatrix); err != nil {
		return nil, err
	}
	return &fixedNode{leaf: l, amount: comp.Amount, fuelMatrix: comp.FuelMatrix}, nil
}

// basisFor resolves the basis of a percentage computation. A target id
// without a basis implies TARGET_COMPONENT; no basis means EX_SHOWROOM.
func (c *compiler) basisFor(comp *types.Component, sec section) (types.Field, error) {
	basis := comp.Basis
	if basis == "" {
		basis = types.FieldExShowroom
		if comp.TargetComponentID != "" {
			basis = types.FieldTargetComponent
		}
	}
	if fieldKinds[basis] == FieldKindText {
		return "", fmt.Errorf("%w: basis %s is not numeric", types.ErrUnknownField, basis)
	}
	if err := fieldAvailable(c.kind, sec, basis); err != nil {
		return "", err
	}
	if basis == types.FieldTargetComponent {
		if comp.TargetComponentID == "" {
			return "", fmt.Errorf("%w: TARGET_COMPONENT basis without target_component_id", types.ErrUnknownTarget)
		}
		c.targets[comp.ID] = comp.TargetComponentID
	}
	return basis, nil
}

func (c *compiler) compilePercentage(comp *types.Component, sec section, mandatory bool) (node, error) {
	l, err := c.leafFor(comp, mandatory)
	if err != nil {
		return nil, err
	}
	if comp.Percentage.IsNegative() {
		return nil, types.ErrNegativeAmount
	}
	if err := checkFuelMatrix(comp.FuelMatrix); err != nil {
		return nil, err
	}
	basis, err := c.basisFor(comp, sec)
	if err != nil {
		return nil, err
	}
	return &percentageNode{
		leaf:       l,
		percentage: comp.Percentage,
		basis:      basis,
		target:     comp.TargetComponentID,
		fuelMatrix: comp.FuelMatrix,
	}, nil
}

func (c *compiler) compileSlab(comp *types.Component, sec section, mandatory bool) (node, error) {
	l, err := c.leafFor(comp, mandatory)
	if err != nil {
		return nil, err
	}
	if len(comp.Ranges) == 0 {
		return nil, fmt.Errorf("%w: no ranges", types.ErrInvalidSlab)
	}
	if len(comp.Ranges) > types.MaxSlabRanges {
		return nil, types.ErrTooManyRanges
	}

	key := comp.SlabVariable
	if key == "" {
		key = types.FieldEngineCC
	}

	var valueType types.SlabValueType
	switch comp.SlabValueType {
	case "", types.SlabValueFixed, types.SlabValuePercentage:
		valueType = comp.SlabValueType
	default:
		return nil, fmt.Errorf("%w: slab_value_type %q", types.ErrInvalidSlab, comp.SlabValueType)
	}

	ranges := make([]slabRange, 0, len(comp.Ranges))
	needsBasis := false
	for i, r := range comp.Ranges {
		rangeKey := key
		if r.SlabBasis != "" {
			rangeKey = r.SlabBasis
		}
		if fieldKinds[rangeKey] == FieldKindText {
			return nil, fmt.Errorf("%w: slab key %s is not numeric", types.ErrInvalidSlab, rangeKey)
		}
		if err := fieldAvailable(c.kind, sec, rangeKey); err != nil {
			return nil, err
		}
		if rangeKey == types.FieldTargetComponent {
			return nil, fmt.Errorf("%w: TARGET_COMPONENT cannot key a slab", types.ErrInvalidSlab)
		}
		if r.Min.IsNegative() || r.Amount.IsNegative() || r.Percentage.IsNegative() {
			return nil, fmt.Errorf("%w: range %d has negative values", types.ErrInvalidSlab, i)
		}
		if r.Max.Valid && !r.Max.Decimal.GreaterThan(r.Min) {
			return nil, fmt.Errorf("%w: range %d max %s not above min %s", types.ErrInvalidSlab, i, r.Max.Decimal, r.Min)
		}

		percent := valueType == types.SlabValuePercentage
		if valueType == "" {
			percent = !r.Percentage.IsZero() && r.Amount.IsZero()
		}
		needsBasis = needsBasis || percent

		ranges = append(ranges, slabRange{
			id:         r.ID,
			min:        r.Min,
			max:        r.Max,
			amount:     r.Amount,
			percentage: r.Percentage,
			fuels:      r.ApplicableFuels,
			key:        rangeKey,
			percent:    percent,
		})
	}

	n := &slabNode{leaf: l, ranges: ranges, target: comp.TargetComponentID}
	if needsBasis {
		if n.basis, err = c.basisFor(comp, sec); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// compilePredicate builds the structured or CEL predicate of a CONDITIONAL.
func (c *compiler) compilePredicate(comp *types.Component, sec section) (predicate, error) {
	if comp.Expression != "" {
		if comp.ConditionVariable != "" {
			return nil, fmt.Errorf("%w: both expression and condition_variable set", types.ErrInvalidExpression)
		}
		expr, err := compileExpression(comp.Expression)
		if err != nil {
			return nil, err
		}
		for _, field := range expr.fields {
			if err := fieldAvailable(c.kind, sec, field); err != nil {
				return nil, fmt.Errorf("%w (expression of %q)", err, comp.ID)
			}
		}
		if len(expr.targets) > 0 {
			c.reads[comp.ID] = expr.targets
		}
		return expr, nil
	}

	field := comp.ConditionVariable
	if field == "" {
		return nil, fmt.Errorf("%w: condition_variable or expression required", types.ErrUnknownField)
	}
	if err := fieldAvailable(c.kind, sec, field); err != nil {
		return nil, err
	}
	if field == types.FieldTargetComponent {
		if comp.TargetComponentID == "" {
			return nil, fmt.Errorf("%w: TARGET_COMPONENT condition without target_component_id", types.ErrUnknownTarget)
		}
		c.targets[comp.ID] = comp.TargetComponentID
	}

	kind := fieldKinds[field]
	op, err := operatorFor(comp.ConditionOperator, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s field %s", err, comp.ConditionOperator, kind, field)
	}

	cmp := comparison{field: field, target: comp.TargetComponentID, op: op}
	if op == OpIn {
		if cmp.set, err = coerceList(string(comp.ConditionValue), kind); err != nil {
			return nil, err
		}
		return cmp, nil
	}
	if cmp.value, err = Coerce(string(comp.ConditionValue), kind); err != nil {
		return nil, fmt.Errorf("%w: condition_value %q for %s", err, comp.ConditionValue, field)
	}
	return cmp, nil
}

func (c *compiler) compileConditional(comp *types.Component, sec section, depth int, mandatory bool) (node, error) {
	pred, err := c.compilePredicate(comp, sec)
	if err != nil {
		return nil, fmt.Errorf("component %q: %w", comp.ID, err)
	}
	n := &conditionalNode{id: comp.ID, pred: pred}
	if n.thenBlock, err = c.compileBlock(comp.ThenBlock, sec, depth+1, mandatory); err != nil {
		return nil, err
	}
	if n.elseBlock, err = c.compileBlock(comp.ElseBlock, sec, depth+1, mandatory); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *compiler) compileSwitch(comp *types.Component, sec section, depth int, mandatory bool) (node, error) {
	if comp.SwitchVariable == "" {
		return nil, fmt.Errorf("component %q: %w: switch_variable required", comp.ID, types.ErrInvalidSwitch)
	}
	if len(comp.Cases) == 0 && comp.DefaultBlock == nil {
		return nil, fmt.Errorf("component %q: %w: no cases", comp.ID, types.ErrInvalidSwitch)
	}
	if len(comp.Cases) > types.MaxSwitchCases {
		return nil, fmt.Errorf("component %q: %w", comp.ID, types.ErrTooManyCases)
	}
	if err := fieldAvailable(c.kind, sec, comp.SwitchVariable); err != nil {
		return nil, fmt.Errorf("component %q: %w", comp.ID, err)
	}
	if comp.SwitchVariable == types.FieldTargetComponent {
		return nil, fmt.Errorf("component %q: %w: TARGET_COMPONENT cannot key a switch", comp.ID, types.ErrInvalidSwitch)
	}

	kind := fieldKinds[comp.SwitchVariable]
	n := &switchNode{id: comp.ID, key: comp.SwitchVariable}
	for i, sc := range comp.Cases {
		match, err := Coerce(string(sc.MatchValue), kind)
		if err != nil {
			return nil, fmt.Errorf("component %q case %d: %w: match_value %q", comp.ID, i, err, sc.MatchValue)
		}
		block, err := c.compileBlock(sc.Block, sec, depth+1, mandatory)
		if err != nil {
			return nil, err
		}
		n.cases = append(n.cases, switchCase{id: sc.ID, match: match, block: block})
	}

	if comp.DefaultBlock != nil {
		n.hasDefault = true
		block, err := c.compileBlock(comp.DefaultBlock, sec, depth+1, mandatory)
		if err != nil {
			return nil, err
		}
		n.defaultBlock = block
	}
	return n, nil
}
