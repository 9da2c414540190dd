// Package api provides the quote API: rule selection and pricing
// orchestration over the rules engine, with gRPC and HTTP bindings.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/core/config"
	"github.com/solatis/ratekeeper/internal/core/db"
	"github.com/solatis/ratekeeper/internal/core/logging"
	"github.com/solatis/ratekeeper/internal/core/metrics"
	"github.com/solatis/ratekeeper/internal/rules"
	"github.com/solatis/ratekeeper/internal/types"
)

// RuleSource looks up stored rule documents. *db.RuleStore implements it.
type RuleSource interface {
	Get(ctx context.Context, id types.RuleID) (*types.RuleDocument, error)
	GetVersion(ctx context.Context, id types.RuleID, version int) (*types.RuleDocument, error)
	FindActive(ctx context.Context, kind types.RuleKind, scopeKey string) (*types.RuleDocument, error)
}

// QuoteRepository persists quotes. *db.QuoteStore implements it.
type QuoteRepository interface {
	Save(ctx context.Context, kind types.QuoteKind, ruleID types.RuleID, ruleVersion int, evalCtx, result any) (types.QuoteID, error)
	Get(ctx context.Context, id types.QuoteID) (*db.Quote, error)
}

// RuleSelector picks the document a quote is priced against. Exactly one
// of Rule, RuleID or Scope is set.
type RuleSelector struct {
	Rule        *types.RuleDocument `json:"rule,omitempty"`
	RuleID      types.RuleID        `json:"rule_id,omitempty"`
	RuleVersion int                 `json:"rule_version,omitempty"`
	Scope       *types.Scope        `json:"scope,omitempty"`
}

func (s RuleSelector) count() int {
	n := 0
	if s.Rule != nil {
		n++
	}
	if s.RuleID != "" {
		n++
	}
	if s.Scope != nil {
		n++
	}
	return n
}

// InsuranceRequest prices an insurance quote. Selection lists the chosen
// add-on indices; nil selects every add-on.
type InsuranceRequest struct {
	RuleSelector
	Context   types.EvaluationContext `json:"context"`
	Selection []int                   `json:"selection,omitempty"`
	Persist   bool                    `json:"persist,omitempty"`
}

// RegistrationRequest prices a registration quote.
type RegistrationRequest struct {
	RuleSelector
	Context types.EvaluationContext `json:"context"`
	Persist bool                    `json:"persist,omitempty"`
}

// OnRoadRequest prices registration and insurance for one vehicle and
// composes the on-road figure.
type OnRoadRequest struct {
	Registration RuleSelector            `json:"registration"`
	Insurance    RuleSelector            `json:"insurance"`
	Context      types.EvaluationContext `json:"context"`
	Selection    []int                   `json:"selection,omitempty"`
	Discount     decimal.Decimal         `json:"discount"`
	DealerOffer  decimal.Decimal         `json:"dealer_offer"`
	Override     decimal.Decimal         `json:"on_road_override"`
	Persist      bool                    `json:"persist,omitempty"`
}

// InsuranceQuote is the priced insurance result with the payable amount of
// the requested selection.
type InsuranceQuote struct {
	QuoteID   types.QuoteID          `json:"quote_id,omitempty"`
	Result    *rules.InsuranceResult `json:"result"`
	Selection []int                  `json:"selection"`
	Payable   decimal.Decimal        `json:"payable"`
}

// RegistrationQuote is the priced registration result.
type RegistrationQuote struct {
	QuoteID types.QuoteID             `json:"quote_id,omitempty"`
	Result  *rules.RegistrationResult `json:"result"`
}

// OnRoadQuote carries both priced parts and the composed figure.
type OnRoadQuote struct {
	QuoteID      types.QuoteID             `json:"quote_id,omitempty"`
	Registration *rules.RegistrationResult `json:"registration"`
	Insurance    *InsuranceQuote           `json:"insurance"`
	Result       rules.OnRoadResult        `json:"result"`
}

// QuoteService orchestrates rule lookup, pricing and quote persistence.
// Thin layer over the rules engine; the transports delegate to it.
type QuoteService struct {
	engine  *rules.Engine
	rules   RuleSource
	quotes  QuoteRepository
	cfg     *config.QuoteAPIConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewQuoteService creates service instance with dependencies.
// ruleSource, quotes and m may be nil: without a rule source only inline
// rules (and the fallback) can be priced, without quotes nothing persists.
func NewQuoteService(engine *rules.Engine, ruleSource RuleSource, quotes QuoteRepository, cfg *config.QuoteAPIConfig, m *metrics.Metrics, logger *slog.Logger) (*QuoteService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteService{
		engine:  engine,
		rules:   ruleSource,
		quotes:  quotes,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}, nil
}

// QuoteInsurance prices an insurance quote.
func (s *QuoteService) QuoteInsurance(ctx context.Context, req *InsuranceRequest) (quote *InsuranceQuote, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	var doc *types.RuleDocument
	defer s.observe(ctx, "insurance", time.Now(), &doc, &err)

	doc, err = s.resolveRule(ctx, types.RuleKindInsurance, req.RuleSelector)
	if err != nil {
		return nil, err
	}
	quote, err = s.priceInsurance(doc, req.Context, req.Selection)
	if err != nil {
		return nil, err
	}
	if s.persist(req.Persist) {
		quote.QuoteID, err = s.save(ctx, types.QuoteInsurance, doc, req.Context, quote)
		if err != nil {
			return nil, err
		}
	}
	return quote, nil
}

// QuoteRegistration prices a registration quote.
func (s *QuoteService) QuoteRegistration(ctx context.Context, req *RegistrationRequest) (quote *RegistrationQuote, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	var doc *types.RuleDocument
	defer s.observe(ctx, "registration", time.Now(), &doc, &err)

	doc, err = s.resolveRule(ctx, types.RuleKindRegistration, req.RuleSelector)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Registration(doc, req.Context)
	if err != nil {
		return nil, err
	}
	quote = &RegistrationQuote{Result: result}
	if s.persist(req.Persist) {
		quote.QuoteID, err = s.save(ctx, types.QuoteRegistration, doc, req.Context, quote)
		if err != nil {
			return nil, err
		}
	}
	return quote, nil
}

// QuoteOnRoad prices registration and insurance against one context and
// composes the on-road figure from the payable insurance amount.
func (s *QuoteService) QuoteOnRoad(ctx context.Context, req *OnRoadRequest) (quote *OnRoadQuote, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	var insDoc *types.RuleDocument
	defer s.observe(ctx, "on_road", time.Now(), &insDoc, &err)

	regDoc, err := s.resolveRule(ctx, types.RuleKindRegistration, req.Registration)
	if err != nil {
		return nil, fmt.Errorf("registration: %w", err)
	}
	insDoc, err = s.resolveRule(ctx, types.RuleKindInsurance, req.Insurance)
	if err != nil {
		return nil, fmt.Errorf("insurance: %w", err)
	}

	reg, err := s.engine.Registration(regDoc, req.Context)
	if err != nil {
		return nil, fmt.Errorf("registration: %w", err)
	}
	ins, err := s.priceInsurance(insDoc, req.Context, req.Selection)
	if err != nil {
		return nil, fmt.Errorf("insurance: %w", err)
	}

	quote = &OnRoadQuote{
		Registration: reg,
		Insurance:    ins,
		Result: rules.ComposeOnRoad(rules.OnRoadInput{
			ExShowroom:        req.Context.ExShowroomPrice,
			RegistrationTotal: reg.TotalAmount,
			InsuranceTotal:    ins.Payable,
			Discount:          req.Discount,
			DealerOffer:       req.DealerOffer,
			Override:          req.Override,
		}),
	}
	if s.persist(req.Persist) {
		quote.QuoteID, err = s.save(ctx, types.QuoteOnRoad, insDoc, req.Context, quote)
		if err != nil {
			return nil, err
		}
	}
	return quote, nil
}

// GetQuote returns a persisted quote.
func (s *QuoteService) GetQuote(ctx context.Context, id types.QuoteID) (*db.Quote, error) {
	if s.quotes == nil {
		return nil, ErrPersistenceDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.quotes.Get(ctx, id)
}

func (s *QuoteService) priceInsurance(doc *types.RuleDocument, evalCtx types.EvaluationContext, indices []int) (*InsuranceQuote, error) {
	result, err := s.engine.Insurance(doc, evalCtx)
	if err != nil {
		return nil, err
	}
	sel := rules.DefaultSelection(result)
	if indices != nil {
		if sel, err = rules.SelectionOf(result, indices); err != nil {
			return nil, err
		}
	}
	return &InsuranceQuote{
		Result:    result,
		Selection: nonNilInts(sel.Indices()),
		Payable:   rules.Payable(result, sel),
	}, nil
}

// resolveRule applies the selector. A historical rule_version may be
// INACTIVE but the document's current version must be ACTIVE. The built-in
// insurance fallback is used, when enabled, if no selector was given or the
// scope has no ACTIVE rule.
func (s *QuoteService) resolveRule(ctx context.Context, kind types.RuleKind, sel RuleSelector) (*types.RuleDocument, error) {
	switch sel.count() {
	case 0:
		return s.fallback(kind, types.ErrNoRuleSelector)
	case 1:
	default:
		return nil, fmt.Errorf("%w: give exactly one of rule, rule_id or scope", types.ErrNoRuleSelector)
	}

	if sel.Rule != nil {
		return sel.Rule, nil
	}
	if s.rules == nil {
		return nil, fmt.Errorf("%w: no rule store configured", types.ErrRuleNotFound)
	}

	if sel.Scope != nil {
		scope := *sel.Scope
		if kind == types.RuleKindRegistration {
			scope.InsurerName = ""
		}
		doc, err := s.rules.FindActive(ctx, kind, scope.Key())
		if err != nil {
			return s.fallback(kind, err)
		}
		return doc, ctx.Err()
	}

	current, err := s.rules.Get(ctx, sel.RuleID)
	if err != nil {
		return nil, err
	}
	if current.Kind != kind {
		return nil, fmt.Errorf("%w: rule %s is %s", types.ErrRuleKindMismatch, current.ID, current.Kind)
	}
	if current.Status != types.RuleStatusActive {
		return nil, fmt.Errorf("%w: %s", types.ErrRuleInactive, current.ID)
	}
	if sel.RuleVersion == 0 || sel.RuleVersion == current.Version {
		return current, ctx.Err()
	}
	doc, err := s.rules.GetVersion(ctx, sel.RuleID, sel.RuleVersion)
	if err != nil {
		return nil, err
	}
	return doc, ctx.Err()
}

// fallback returns the built-in insurance rule when enabled, cause otherwise.
func (s *QuoteService) fallback(kind types.RuleKind, cause error) (*types.RuleDocument, error) {
	if kind == types.RuleKindInsurance && s.cfg.InsuranceFallback && isNotFound(cause) {
		return rules.FallbackInsuranceRule(), nil
	}
	return nil, cause
}

func isNotFound(err error) bool {
	c := classify(err)
	return c == classNotFound || err == types.ErrNoRuleSelector
}

func (s *QuoteService) persist(requested bool) bool {
	return requested || s.cfg.PersistQuotes
}

func (s *QuoteService) save(ctx context.Context, kind types.QuoteKind, doc *types.RuleDocument, evalCtx types.EvaluationContext, result any) (types.QuoteID, error) {
	if s.quotes == nil {
		return "", ErrPersistenceDisabled
	}
	return s.quotes.Save(ctx, kind, doc.ID, doc.Version, evalCtx, result)
}

// observe records metrics and logs failures with the rule that caused them.
func (s *QuoteService) observe(ctx context.Context, kind string, start time.Time, doc **types.RuleDocument, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = classify(*err).name
		attrs := []any{
			slog.String("kind", kind),
			slog.String("class", outcome),
			slog.String("error", (*err).Error()),
		}
		if *doc != nil {
			attrs = append(attrs, slog.String("rule_id", string((*doc).ID)), slog.Int("rule_version", (*doc).Version))
		}
		if rk := resolutionKind(*err); rk != "" {
			attrs = append(attrs, slog.String("resolution", rk))
		}
		logging.FromContext(ctx, s.logger).WarnContext(ctx, "quote failed", attrs...)
	}
	if s.metrics != nil {
		s.metrics.RecordQuote(kind, outcome, time.Since(start))
	}
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
