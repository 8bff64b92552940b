// Package discovery executes hybrid retrieval: nearest-neighbor search
// against the vector role joined with supporting context from the index
// role, ranked and deduplicated into DiscoveredKnowledge results.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/registry"
	"github.com/cognidex/cognidex/internal/store"
	"github.com/cognidex/cognidex/internal/telemetry"
)

// ErrRetrievalUnavailable is returned when no vector-role driver could
// serve the search. Callers must distinguish "no results" from "could
// not search".
var ErrRetrievalUnavailable = errors.New("no vector backend could serve the search")

// Embedder turns query text into a fixed-dimension vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// AuditSink receives discovery results for after-the-fact analysis.
// Recording is best-effort and never fails the query.
type AuditSink interface {
	Record(ctx context.Context, results []*domain.DiscoveredKnowledge) error
}

// Engine resolves discovery queries against the backend registry.
type Engine struct {
	reg      *registry.Registry
	embedder Embedder
	audit    AuditSink
	now      func() time.Time
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditSink records every query's results to the given sink.
func WithAuditSink(sink AuditSink) Option {
	return func(e *Engine) { e.audit = sink }
}

// New creates a discovery engine over the given registry and embedder.
func New(reg *registry.Registry, embedder Embedder, opts ...Option) *Engine {
	e := &Engine{
		reg:      reg,
		embedder: embedder,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover embeds the query, searches the vector role with ordered
// fallback, joins hits against the index role, and returns ranked,
// deduplicated results truncated to topK.
func (e *Engine) Discover(ctx context.Context, queryText, collectionID string, topK int, sessionID string) ([]*domain.DiscoveredKnowledge, error) {
	ctx, span := telemetry.StartSpan(ctx, "discover", telemetry.SpanAttributes{
		Collection: collectionID,
		Session:    sessionID,
		Operation:  "discover",
	})
	defer span.End()

	if queryText == "" {
		return nil, domain.ErrMissingQuery
	}
	if collectionID == "" {
		return nil, domain.ErrMissingCollectionID
	}
	if topK <= 0 {
		topK = 10
	}

	embedding, err := e.embedder.GenerateEmbedding(ctx, queryText)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.searchWithFallback(ctx, embedding, topK, collectionID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	triplesByKey := e.resolveContext(ctx, collectionID, hits)

	results := e.assemble(queryText, collectionID, sessionID, embedding, hits, triplesByKey)
	rank(results)
	results = dedupe(results)
	if len(results) > topK {
		results = results[:topK]
	}

	if e.audit != nil && len(results) > 0 {
		if err := e.audit.Record(ctx, results); err != nil {
			log.Printf("discovery: audit record failed (query continues): %v", err)
		}
	}

	return results, nil
}

// searchWithFallback walks the vector role's healthy instances in
// declared order, trying one driver at a time; tripped instances are not
// consulted. Reads never fan out to all drivers; redundant vector stores
// would produce duplicate and conflicting result sets.
func (e *Engine) searchWithFallback(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	order := e.reg.ReadOrder(store.RoleVector)
	if len(order) == 0 {
		return nil, ErrRetrievalUnavailable
	}

	var lastErr error
	for _, inst := range order {
		hits, err := inst.Driver().SearchSimilar(ctx, embedding, topK, collectionID)
		inst.Report(err)
		if err == nil {
			return hits, nil
		}
		lastErr = err
		log.Printf("discovery: vector search on %q failed, trying next: %v", inst.Name(), err)
	}
	return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, lastErr)
}

// resolveContext batches one index-role lookup for all hit keys. A
// failing lookup degrades every hit to empty context rather than failing
// the query.
func (e *Engine) resolveContext(ctx context.Context, collectionID string, hits []store.VectorHit) map[store.Key][]*domain.SemanticTriple {
	byKey := make(map[store.Key][]*domain.SemanticTriple)

	primary := e.reg.PrimaryReader(store.RoleIndex)
	if primary == nil {
		return byKey
	}

	keys := make([]store.Key, 0, len(hits))
	seen := make(map[store.Key]bool, len(hits))
	for _, h := range hits {
		k := store.Key{DocumentID: h.DocumentID, Sentence: h.Sentence}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	triples, err := primary.Driver().ReadByKeys(ctx, collectionID, keys)
	primary.Report(err)
	if err != nil {
		log.Printf("discovery: context join on %q failed, returning partial context: %v", primary.Name(), err)
		return byKey
	}

	for _, t := range triples {
		k := store.Key{DocumentID: t.DocumentID, Sentence: t.Sentence}
		byKey[k] = append(byKey[k], t)
	}
	return byKey
}

// assemble expands every hit into one result per matching triple, or a
// single context-free result when the join found nothing for its key.
func (e *Engine) assemble(queryText, collectionID, sessionID string, embedding []float32, hits []store.VectorHit, triplesByKey map[store.Key][]*domain.SemanticTriple) []*domain.DiscoveredKnowledge {
	now := e.now().UTC()
	results := make([]*domain.DiscoveredKnowledge, 0, len(hits))

	for _, h := range hits {
		base := domain.DiscoveredKnowledge{
			Collection:     collectionID,
			SessionID:      sessionID,
			Query:          queryText,
			QueryEmbedding: embedding,
			DocID:          h.DocumentID,
			DocSource:      h.DocumentSource,
			Sentence:       h.Sentence,
			CosineDistance: h.CosineDistance,
			Score:          h.Score,
			CreatedAt:      now,
		}

		matches := triplesByKey[store.Key{DocumentID: h.DocumentID, Sentence: h.Sentence}]
		if len(matches) == 0 {
			// Orphaned embedding: keep the hit with empty context.
			d := base
			d.ID = e.newID()
			results = append(results, &d)
			continue
		}
		for _, t := range matches {
			d := base
			d.ID = e.newID()
			d.Subject = t.Subject
			d.Object = t.Object
			results = append(results, &d)
		}
	}
	return results
}

// rank sorts by ascending cosine distance, ties broken by descending
// extraction score, then by document id lexical order. The full ordering
// is deterministic so repeated queries reproduce their result order.
func rank(results []*domain.DiscoveredKnowledge) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.CosineDistance != b.CosineDistance {
			return a.CosineDistance < b.CosineDistance
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.DocID < b.DocID
	})
}

// dedupe keeps the first (lowest-distance) occurrence per
// (subject, object, sentence). Must run after rank.
func dedupe(results []*domain.DiscoveredKnowledge) []*domain.DiscoveredKnowledge {
	type identity struct {
		subject  string
		object   string
		sentence string
	}
	seen := make(map[identity]bool, len(results))
	out := results[:0]
	for _, d := range results {
		id := identity{subject: d.Subject, object: d.Object, sentence: d.Sentence}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, d)
	}
	return out
}
