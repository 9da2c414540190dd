// internal/rules/engine.go
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * Engine: compile cache in front of the pure evaluators.
 *
 * Compiled documents are keyed by the SHA-256 of the document's JSON form,
 * so an edited document (new version, patched component) never reuses
 * compiled state of the one it replaced. Switching scope selects a
 * different document and therefore a different key.
 *
 * The cache is bounded; when full it is cleared rather than evicting one
 * entry. Rule sets are small and recompiling is cheap next to a DB read.
 */

// DefaultCacheSize bounds the compile cache when NewEngine gets 0.
const DefaultCacheSize = 256

// CacheStats reports compile cache activity.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Engine compiles and evaluates rule documents. Safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	cache    map[string]*CompiledDocument
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewEngine creates an engine whose cache holds up to cacheSize documents.
func NewEngine(cacheSize int) *Engine {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Engine{
		cache:    make(map[string]*CompiledDocument, cacheSize),
		capacity: cacheSize,
	}
}

// Fingerprint returns the cache key of a document.
func Fingerprint(doc *types.RuleDocument) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode rule document: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Compile returns the compiled form of doc, from cache when possible.
func (e *Engine) Compile(doc *types.RuleDocument) (*CompiledDocument, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", types.ErrInvalidRuleDocument)
	}
	key, err := Fingerprint(doc)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	compiled, ok := e.cache[key]
	e.mu.Unlock()
	if ok {
		e.hits.Add(1)
		return compiled, nil
	}
	e.misses.Add(1)

	compiled, err = Compile(doc)
	if err != nil {
		return nil, err
	}
	compiled.Fingerprint = key

	e.mu.Lock()
	if len(e.cache) >= e.capacity {
		clear(e.cache)
	}
	e.cache[key] = compiled
	e.mu.Unlock()
	return compiled, nil
}

// Insurance compiles doc and prices it against ctx.
func (e *Engine) Insurance(doc *types.RuleDocument, ctx types.EvaluationContext) (*InsuranceResult, error) {
	compiled, err := e.Compile(doc)
	if err != nil {
		return nil, err
	}
	return EvaluateInsurance(compiled, ctx)
}

// Registration compiles doc and prices it against ctx.
func (e *Engine) Registration(doc *types.RuleDocument, ctx types.EvaluationContext) (*RegistrationResult, error) {
	compiled, err := e.Compile(doc)
	if err != nil {
		return nil, err
	}
	return EvaluateRegistration(compiled, ctx)
}

// Validate compiles doc without caching it. Used as the store's write hook.
func (e *Engine) Validate(doc *types.RuleDocument) error {
	_, err := Compile(doc)
	return err
}

// Stats returns a snapshot of cache counters.
func (e *Engine) Stats() CacheStats {
	e.mu.Lock()
	entries := len(e.cache)
	e.mu.Unlock()
	return CacheStats{
		Hits:    e.hits.Load(),
		Misses:  e.misses.Load(),
		Entries: entries,
	}
}
