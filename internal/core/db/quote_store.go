package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/ratekeeper/internal/types"
)

// Quote is a persisted pricing result with the inputs that produced it.
type Quote struct {
	ID          types.QuoteID   `json:"quote_id"`
	Kind        types.QuoteKind `json:"kind"`
	RuleID      types.RuleID    `json:"rule_id"`
	RuleVersion int             `json:"rule_version"`
	Context     json.RawMessage `json:"context"`
	Result      json.RawMessage `json:"result"`
	CreatedAt   time.Time       `json:"created_at"`
}

type quoteRow struct {
	QuoteID     string `db:"quote_id"`
	Kind        string `db:"kind"`
	RuleID      string `db:"rule_id"`
	RuleVersion int    `db:"rule_version"`
	Context     string `db:"context"`
	Result      string `db:"result"`
	CreatedAt   string `db:"created_at"`
}

// QuoteStore persists quotes.
type QuoteStore struct {
	q   *Queries
	now func() time.Time
}

// NewQuoteStore creates a quote store.
func NewQuoteStore(q *Queries) *QuoteStore {
	return &QuoteStore{q: q, now: time.Now}
}

// Save stores a quote and returns its UUIDv7 id. context and result are
// encoded as JSON.
func (s *QuoteStore) Save(ctx context.Context, kind types.QuoteKind, ruleID types.RuleID, ruleVersion int, evalCtx, result any) (types.QuoteID, error) {
	ctxJSON, err := json.Marshal(evalCtx)
	if err != nil {
		return "", fmt.Errorf("encode quote context: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode quote result: %w", err)
	}

	id := types.NewQuoteID()
	ts := s.now().UTC().Format(time.RFC3339)
	if _, err := s.q.Exec(ctx, "insert-quote",
		id, kind, ruleID, ruleVersion, string(ctxJSON), string(resultJSON), ts); err != nil {
		return "", fmt.Errorf("insert quote: %w", err)
	}
	return id, nil
}

// Get returns a stored quote. Malformed ids are reported as not found.
func (s *QuoteStore) Get(ctx context.Context, id types.QuoteID) (*Quote, error) {
	if _, err := types.ParseQuoteID(string(id)); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrQuoteNotFound, id)
	}

	var row quoteRow
	if err := s.q.Get(ctx, "get-quote", &row, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrQuoteNotFound, id)
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}

	created, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt quote %s: %w", id, err)
	}
	return &Quote{
		ID:          types.QuoteID(row.QuoteID),
		Kind:        types.QuoteKind(row.Kind),
		RuleID:      types.RuleID(row.RuleID),
		RuleVersion: row.RuleVersion,
		Context:     json.RawMessage(row.Context),
		Result:      json.RawMessage(row.Result),
		CreatedAt:   created,
	}, nil
}
