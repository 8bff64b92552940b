package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

// IndexDriver persists triples, discoveries, and insights in PostgreSQL
// and serves the relational side of the hybrid join.
type IndexDriver struct {
	name string
	pool *pgxpool.Pool
}

var _ store.Driver = (*IndexDriver)(nil)

// NewIndexDriver connects to PostgreSQL and returns an index-role driver.
func NewIndexDriver(ctx context.Context, name, connString string) (*IndexDriver, error) {
	pool, err := newPool(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &IndexDriver{name: name, pool: pool}, nil
}

func (d *IndexDriver) Name() string        { return d.name }
func (d *IndexDriver) Kind() string        { return "postgres" }
func (d *IndexDriver) Roles() []store.Role { return []store.Role{store.RoleIndex} }

func (d *IndexDriver) Write(ctx context.Context, rec domain.Record) (store.WriteOutcome, error) {
	switch r := rec.(type) {
	case *domain.SemanticTriple:
		return d.writeTriple(ctx, r)
	case *domain.DiscoveredKnowledge:
		return d.writeDiscovery(ctx, r)
	case *domain.InsightKnowledge:
		return d.writeInsight(ctx, r)
	default:
		return store.WriteOutcome{}, store.Unsupported(d.name, "write:"+string(rec.RecordKind()))
	}
}

func (d *IndexDriver) writeTriple(ctx context.Context, t *domain.SemanticTriple) (store.WriteOutcome, error) {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tag, err := d.pool.Exec(ctx,
		`INSERT INTO semantic_knowledge
			(event_id, collection_id, subject, subject_type, predicate, predicate_type,
			 object, object_type, sentence, document_id, document_source, image_id, source_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (event_id) DO NOTHING`,
		t.EventID, t.Collection, t.Subject, t.SubjectType, t.Predicate, t.PredicateType,
		t.Object, t.ObjectType, t.Sentence, t.DocumentID, t.DocumentSource,
		nullableString(t.ImageID), nullableString(t.SourceID), createdAt,
	)
	if err != nil {
		// The conflict target only covers event_id; a unique violation here
		// means the natural statement key collided under a new event id.
		if isUniqueViolation(err) {
			return d.resolveNaturalKeyDuplicate(ctx, t)
		}
		return store.WriteOutcome{}, normalize(d.name, "write_triple", err)
	}
	if tag.RowsAffected() > 0 {
		return store.WriteOutcome{Backend: d.name}, nil
	}

	// Duplicate event id: identical payload is an idempotent redelivery,
	// a differing one is a hard inconsistency.
	existing, err := d.readTriple(ctx, t.EventID)
	if err != nil {
		return store.WriteOutcome{}, err
	}
	if existing.Fingerprint() != t.Fingerprint() {
		return store.WriteOutcome{}, store.NewError(store.ErrInconsistent, d.name, "write_triple", nil)
	}
	return store.WriteOutcome{Backend: d.name, Deduplicated: true}, nil
}

// resolveNaturalKeyDuplicate decides whether a natural-key collision was
// a redelivery of the same statement (full payload match) or a record
// that genuinely differs in its evidence fields and must not be dropped
// silently.
func (d *IndexDriver) resolveNaturalKeyDuplicate(ctx context.Context, t *domain.SemanticTriple) (store.WriteOutcome, error) {
	var existing domain.SemanticTriple
	var imageID, sourceID *string
	err := d.pool.QueryRow(ctx,
		`SELECT event_id, collection_id, subject, subject_type, predicate, predicate_type,
		        object, object_type, sentence, document_id, document_source, image_id, source_id, created_at
		 FROM semantic_knowledge
		 WHERE collection_id = $1 AND subject = $2 AND predicate = $3 AND object = $4 AND sentence = $5`,
		t.Collection, t.Subject, t.Predicate, t.Object, t.Sentence,
	).Scan(&existing.EventID, &existing.Collection, &existing.Subject, &existing.SubjectType,
		&existing.Predicate, &existing.PredicateType, &existing.Object, &existing.ObjectType,
		&existing.Sentence, &existing.DocumentID, &existing.DocumentSource, &imageID, &sourceID,
		&existing.CreatedAt)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_triple", err)
	}
	if imageID != nil {
		existing.ImageID = *imageID
	}
	if sourceID != nil {
		existing.SourceID = *sourceID
	}

	if existing.Fingerprint() != t.Fingerprint() {
		return store.WriteOutcome{}, store.NewError(store.ErrInconsistent, d.name, "write_triple", nil)
	}
	return store.WriteOutcome{Backend: d.name, Deduplicated: true}, nil
}

func (d *IndexDriver) readTriple(ctx context.Context, eventID string) (*domain.SemanticTriple, error) {
	var t domain.SemanticTriple
	var imageID, sourceID *string
	err := d.pool.QueryRow(ctx,
		`SELECT event_id, collection_id, subject, subject_type, predicate, predicate_type,
		        object, object_type, sentence, document_id, document_source, image_id, source_id, created_at
		 FROM semantic_knowledge WHERE event_id = $1`,
		eventID,
	).Scan(&t.EventID, &t.Collection, &t.Subject, &t.SubjectType, &t.Predicate, &t.PredicateType,
		&t.Object, &t.ObjectType, &t.Sentence, &t.DocumentID, &t.DocumentSource, &imageID, &sourceID, &t.CreatedAt)
	if err != nil {
		return nil, normalize(d.name, "read_triple", err)
	}
	if imageID != nil {
		t.ImageID = *imageID
	}
	if sourceID != nil {
		t.SourceID = *sourceID
	}
	return &t, nil
}

func (d *IndexDriver) writeDiscovery(ctx context.Context, disc *domain.DiscoveredKnowledge) (store.WriteOutcome, error) {
	createdAt := disc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var queryEmbedding *pgvector.Vector
	if len(disc.QueryEmbedding) > 0 {
		v := pgvector.NewVector(disc.QueryEmbedding)
		queryEmbedding = &v
	}

	tag, err := d.pool.Exec(ctx,
		`INSERT INTO discovered_knowledge
			(id, collection_id, session_id, query, query_embedding, doc_id, doc_source, sentence,
			 subject, object, cosine_distance, score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		disc.ID, disc.Collection, nullableString(disc.SessionID), disc.Query, queryEmbedding,
		disc.DocID, disc.DocSource, disc.Sentence, disc.Subject, disc.Object,
		disc.CosineDistance, disc.Score, createdAt,
	)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_discovery", err)
	}
	return store.WriteOutcome{Backend: d.name, Deduplicated: tag.RowsAffected() == 0}, nil
}

func (d *IndexDriver) writeInsight(ctx context.Context, ins *domain.InsightKnowledge) (store.WriteOutcome, error) {
	createdAt := ins.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tag, err := d.pool.Exec(ctx,
		`INSERT INTO insight_knowledge (id, collection_id, session_id, query, response, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		ins.ID, ins.Collection, ins.SessionID, ins.Query, ins.Response, createdAt,
	)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_insight", err)
	}
	return store.WriteOutcome{Backend: d.name, Deduplicated: tag.RowsAffected() == 0}, nil
}

func (d *IndexDriver) SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	return nil, store.Unsupported(d.name, "search_similar")
}

func (d *IndexDriver) ReadByKeys(ctx context.Context, collectionID string, keys []store.Key) ([]*domain.SemanticTriple, error) {
	if len(keys) == 0 {
		return []*domain.SemanticTriple{}, nil
	}

	docIDs := make([]string, len(keys))
	sentences := make([]string, len(keys))
	for i, k := range keys {
		docIDs[i] = k.DocumentID
		sentences[i] = k.Sentence
	}

	rows, err := d.pool.Query(ctx,
		`SELECT event_id, collection_id, subject, subject_type, predicate, predicate_type,
		        object, object_type, sentence, document_id, document_source, image_id, source_id, created_at
		 FROM semantic_knowledge
		 WHERE collection_id = $1
		   AND (document_id, sentence) IN (
		       SELECT * FROM unnest($2::text[], $3::text[])
		   )`,
		collectionID, docIDs, sentences,
	)
	if err != nil {
		return nil, normalize(d.name, "read_by_keys", err)
	}
	defer rows.Close()

	return scanTriples(d.name, rows)
}

func (d *IndexDriver) ReadSession(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, collection_id, session_id, query, response, created_at
		 FROM insight_knowledge
		 WHERE session_id = $1
		 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, normalize(d.name, "read_session", err)
	}
	defer rows.Close()

	var insights []*domain.InsightKnowledge
	for rows.Next() {
		var ins domain.InsightKnowledge
		if err := rows.Scan(&ins.ID, &ins.Collection, &ins.SessionID, &ins.Query, &ins.Response, &ins.CreatedAt); err != nil {
			return nil, normalize(d.name, "read_session", err)
		}
		insights = append(insights, &ins)
	}
	if err := rows.Err(); err != nil {
		return nil, normalize(d.name, "read_session", err)
	}
	return insights, nil
}

func (d *IndexDriver) Close() error {
	d.pool.Close()
	return nil
}

func scanTriples(backend string, rows pgx.Rows) ([]*domain.SemanticTriple, error) {
	var results []*domain.SemanticTriple
	for rows.Next() {
		var t domain.SemanticTriple
		var imageID, sourceID *string
		if err := rows.Scan(&t.EventID, &t.Collection, &t.Subject, &t.SubjectType, &t.Predicate, &t.PredicateType,
			&t.Object, &t.ObjectType, &t.Sentence, &t.DocumentID, &t.DocumentSource, &imageID, &sourceID, &t.CreatedAt); err != nil {
			return nil, normalize(backend, "scan_triples", err)
		}
		if imageID != nil {
			t.ImageID = *imageID
		}
		if sourceID != nil {
			t.SourceID = *sourceID
		}
		results = append(results, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, normalize(backend, "scan_triples", err)
	}
	return results, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
