package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Rule document store.
 *
 * rule_documents holds the current version of each document; every
 * persisted version is also written to rule_document_versions so quotes
 * priced against an older version can be reconstructed.
 *
 * Edits are optimistic: UPDATE ... WHERE rule_id = ? AND version = ?, zero
 * rows affected means another writer got there first. Versions are never
 * reused.
 *
 * At most one document per (kind, scope_key) is ACTIVE. The check runs in
 * the writing transaction and a partial unique index backs it against
 * concurrent writers.
 */

// ValidateFunc rejects a document before it is stored. The API wires the
// engine's compile step here so unpriceable documents never persist.
type ValidateFunc func(*types.RuleDocument) error

// RuleStore persists versioned rule documents.
type RuleStore struct {
	q        *Queries
	validate ValidateFunc
	now      func() time.Time
}

// NewRuleStore creates a store. validate may be nil.
func NewRuleStore(q *Queries, validate ValidateFunc) *RuleStore {
	return &RuleStore{q: q, validate: validate, now: time.Now}
}

type ruleRow struct {
	RuleID    string `db:"rule_id"`
	Kind      string `db:"kind"`
	Version   int    `db:"version"`
	Status    string `db:"status"`
	ScopeKey  string `db:"scope_key"`
	Body      string `db:"body"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type versionRow struct {
	RuleID    string `db:"rule_id"`
	Version   int    `db:"version"`
	Status    string `db:"status"`
	Body      string `db:"body"`
	CreatedAt string `db:"created_at"`
}

// decodeBody restores a document; columns are authoritative for identity,
// version and status.
func decodeBody(body, id string, version int, status string) (*types.RuleDocument, error) {
	var doc types.RuleDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("corrupt rule document %s v%d: %w", id, version, err)
	}
	doc.ID = types.RuleID(id)
	doc.Version = version
	doc.Status = types.RuleStatus(status)
	return &doc, nil
}

func (r ruleRow) document() (*types.RuleDocument, error) {
	return decodeBody(r.Body, r.RuleID, r.Version, r.Status)
}

// Create stores a new document at version 1. An empty id is assigned a
// UUIDv7 and an empty status defaults to INACTIVE.
func (s *RuleStore) Create(ctx context.Context, doc *types.RuleDocument) (*types.RuleDocument, error) {
	next := *doc
	if next.ID == "" {
		next.ID = types.NewRuleID()
	}
	if next.Status == "" {
		next.Status = types.RuleStatusInactive
	}
	next.Version = 1

	body, err := s.prepare(&next)
	if err != nil {
		return nil, err
	}

	ts := s.timestamp()
	err = s.q.InTx(ctx, func(tx *Tx) error {
		if next.Status == types.RuleStatusActive {
			if err := checkActiveScope(ctx, tx, &next); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, "insert-rule-document",
			next.ID, next.Kind, next.Version, next.Status, next.ScopeKey(), body, ts, ts); err != nil {
			return storeError(err, "insert rule document")
		}
		return insertVersion(ctx, tx, &next, body, ts)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Get returns the current version of a document.
func (s *RuleStore) Get(ctx context.Context, id types.RuleID) (*types.RuleDocument, error) {
	var row ruleRow
	if err := s.q.Get(ctx, "get-rule-document", &row, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
		}
		return nil, fmt.Errorf("get rule document: %w", err)
	}
	return row.document()
}

// GetVersion returns a historical version of a document.
func (s *RuleStore) GetVersion(ctx context.Context, id types.RuleID, version int) (*types.RuleDocument, error) {
	var row versionRow
	if err := s.q.Get(ctx, "get-rule-document-version", &row, id, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s v%d", types.ErrRuleNotFound, id, version)
		}
		return nil, fmt.Errorf("get rule document version: %w", err)
	}
	return decodeBody(row.Body, row.RuleID, row.Version, row.Status)
}

// FindActive returns the ACTIVE document of a kind for a scope key.
func (s *RuleStore) FindActive(ctx context.Context, kind types.RuleKind, scopeKey string) (*types.RuleDocument, error) {
	var row ruleRow
	if err := s.q.Get(ctx, "find-active-rule-document", &row, kind, scopeKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active %s rule for %s", types.ErrRuleNotFound, kind, scopeKey)
		}
		return nil, fmt.Errorf("find active rule document: %w", err)
	}
	return row.document()
}

// List returns current documents, all kinds when kind is empty.
func (s *RuleStore) List(ctx context.Context, kind types.RuleKind) ([]*types.RuleDocument, error) {
	var rows []ruleRow
	var err error
	if kind == "" {
		err = s.q.Select(ctx, "list-rule-documents", &rows)
	} else {
		err = s.q.Select(ctx, "list-rule-documents-by-kind", &rows, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("list rule documents: %w", err)
	}

	docs := make([]*types.RuleDocument, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Update replaces a document, provided its current version is
// expectedVersion. The stored version becomes expectedVersion+1. Kind is
// fixed at creation; an empty status keeps the current one.
func (s *RuleStore) Update(ctx context.Context, doc *types.RuleDocument, expectedVersion int) (*types.RuleDocument, error) {
	current, err := s.Get(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("%w: %s is at v%d, expected v%d", types.ErrVersionConflict, doc.ID, current.Version, expectedVersion)
	}
	if doc.Kind != current.Kind {
		return nil, fmt.Errorf("%w: kind cannot change from %s to %s", types.ErrInvalidRuleDocument, current.Kind, doc.Kind)
	}

	next := *doc
	next.Version = expectedVersion + 1
	if next.Status == "" {
		next.Status = current.Status
	}

	body, err := s.prepare(&next)
	if err != nil {
		return nil, err
	}

	ts := s.timestamp()
	err = s.q.InTx(ctx, func(tx *Tx) error {
		if next.Status == types.RuleStatusActive {
			if err := checkActiveScope(ctx, tx, &next); err != nil {
				return err
			}
		}
		res, err := tx.Exec(ctx, "update-rule-document",
			next.Version, next.Status, next.ScopeKey(), body, ts, next.ID, expectedVersion)
		if err != nil {
			return storeError(err, "update rule document")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update rule document: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s changed concurrently", types.ErrVersionConflict, next.ID)
		}
		return insertVersion(ctx, tx, &next, body, ts)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Patch applies an RFC 6902 JSON patch to the current version and stores
// the result as a new version. The document id cannot be patched.
func (s *RuleStore) Patch(ctx context.Context, id types.RuleID, expectedVersion int, patch []byte) (*types.RuleDocument, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("%w: %s is at v%d, expected v%d", types.ErrVersionConflict, id, current.Version, expectedVersion)
	}

	ops, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("%w: decode patch: %v", types.ErrInvalidRuleDocument, err)
	}
	original, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode rule document: %w", err)
	}
	patched, err := ops.Apply(original)
	if err != nil {
		return nil, fmt.Errorf("%w: apply patch: %v", types.ErrInvalidRuleDocument, err)
	}

	next, err := types.DecodeRuleDocument(patched)
	if err != nil {
		return nil, err
	}
	if next.ID != id {
		return nil, fmt.Errorf("%w: patch cannot change id", types.ErrInvalidRuleDocument)
	}
	return s.Update(ctx, next, expectedVersion)
}

// SetStatus activates or deactivates a document as a new version.
func (s *RuleStore) SetStatus(ctx context.Context, id types.RuleID, status types.RuleStatus, expectedVersion int) (*types.RuleDocument, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	current.Status = status
	return s.Update(ctx, current, expectedVersion)
}

// prepare validates and encodes a document for storage.
func (s *RuleStore) prepare(doc *types.RuleDocument) (string, error) {
	if doc.Status != types.RuleStatusActive && doc.Status != types.RuleStatusInactive {
		return "", fmt.Errorf("%w: unknown status %q", types.ErrInvalidRuleDocument, doc.Status)
	}
	if s.validate != nil {
		if err := s.validate(doc); err != nil {
			return "", err
		}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode rule document: %w", err)
	}
	if len(body) > types.MaxDocumentSize {
		return "", types.ErrDocumentTooLarge
	}
	return string(body), nil
}

func (s *RuleStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func checkActiveScope(ctx context.Context, tx *Tx, doc *types.RuleDocument) error {
	var n int
	if err := tx.Get(ctx, "count-active-in-scope", &n, doc.Kind, doc.ScopeKey(), doc.ID); err != nil {
		return fmt.Errorf("check active scope: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s %s", types.ErrActiveScopeConflict, doc.Kind, doc.ScopeKey())
	}
	return nil
}

func insertVersion(ctx context.Context, tx *Tx, doc *types.RuleDocument, body, ts string) error {
	if _, err := tx.Exec(ctx, "insert-rule-document-version",
		doc.ID, doc.Version, doc.Status, body, ts); err != nil {
		return storeError(err, "insert rule document version")
	}
	return nil
}

// activeScopeIndex is the partial unique index over ACTIVE documents.
const activeScopeIndex = "idx_rule_documents_active_scope"

// storeError maps constraint violations: the ACTIVE-scope index to
// ErrActiveScopeConflict, primary keys to ErrRuleExists.
func storeError(err error, op string) error {
	switch constraintViolation(err) {
	case violationActiveScope:
		return fmt.Errorf("%s: %w", op, types.ErrActiveScopeConflict)
	case violationPrimaryKey:
		return fmt.Errorf("%s: %w", op, types.ErrRuleExists)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type violation int

const (
	violationNone violation = iota
	violationActiveScope
	violationPrimaryKey
)

// constraintViolation classifies a driver error. sqlite reports primary
// keys under their own extended code, so any other UNIQUE failure is the
// scope index; postgres shares SQLSTATE 23505 and names the constraint.
func constraintViolation(err error) violation {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return violationActiveScope
		case sqlite3.ErrConstraintPrimaryKey:
			return violationPrimaryKey
		}
		return violationNone
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if pqErr.Constraint == activeScopeIndex {
			return violationActiveScope
		}
		return violationPrimaryKey
	}
	return violationNone
}
