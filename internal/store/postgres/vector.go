package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

// VectorDriver persists embedded knowledge in the pgvector extension and
// serves nearest-neighbor search with the cosine-distance operator.
type VectorDriver struct {
	name string
	pool *pgxpool.Pool
}

var _ store.Driver = (*VectorDriver)(nil)

// NewVectorDriver connects to PostgreSQL (with pgvector installed) and
// returns a vector-role driver.
func NewVectorDriver(ctx context.Context, name, connString string) (*VectorDriver, error) {
	pool, err := newPool(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &VectorDriver{name: name, pool: pool}, nil
}

func (d *VectorDriver) Name() string        { return d.name }
func (d *VectorDriver) Kind() string        { return "pgvector" }
func (d *VectorDriver) Roles() []store.Role { return []store.Role{store.RoleVector} }

func (d *VectorDriver) Write(ctx context.Context, rec domain.Record) (store.WriteOutcome, error) {
	emb, ok := rec.(*domain.EmbeddedKnowledge)
	if !ok {
		return store.WriteOutcome{}, store.Unsupported(d.name, "write:"+string(rec.RecordKind()))
	}
	if len(emb.Embeddings) != domain.EmbeddingDim {
		return store.WriteOutcome{}, store.NewError(store.ErrSchemaViolation, d.name, "write_embedding", domain.ErrWrongEmbeddingDim)
	}

	createdAt := emb.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tag, err := d.pool.Exec(ctx,
		`INSERT INTO embedded_knowledge
			(event_id, collection_id, embeddings, score, document_id, document_source, sentence, predicate, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (event_id) DO NOTHING`,
		emb.EventID, emb.Collection, pgvector.NewVector(emb.Embeddings), emb.Score,
		emb.DocumentID, emb.DocumentSource, emb.Sentence, emb.Predicate, createdAt,
	)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}
	if tag.RowsAffected() > 0 {
		return store.WriteOutcome{Backend: d.name}, nil
	}

	existing, err := d.readEmbedding(ctx, emb.EventID)
	if err != nil {
		return store.WriteOutcome{}, err
	}
	if existing.Fingerprint() != emb.Fingerprint() {
		return store.WriteOutcome{}, store.NewError(store.ErrInconsistent, d.name, "write_embedding", nil)
	}
	return store.WriteOutcome{Backend: d.name, Deduplicated: true}, nil
}

func (d *VectorDriver) readEmbedding(ctx context.Context, eventID string) (*domain.EmbeddedKnowledge, error) {
	var emb domain.EmbeddedKnowledge
	var vec pgvector.Vector
	err := d.pool.QueryRow(ctx,
		`SELECT event_id, collection_id, embeddings, score, document_id, document_source, sentence, predicate, created_at
		 FROM embedded_knowledge WHERE event_id = $1`,
		eventID,
	).Scan(&emb.EventID, &emb.Collection, &vec, &emb.Score,
		&emb.DocumentID, &emb.DocumentSource, &emb.Sentence, &emb.Predicate, &emb.CreatedAt)
	if err != nil {
		return nil, normalize(d.name, "read_embedding", err)
	}
	emb.Embeddings = vec.Slice()
	return &emb, nil
}

func (d *VectorDriver) SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	if len(embedding) != domain.EmbeddingDim {
		return nil, store.NewError(store.ErrSchemaViolation, d.name, "search_similar", domain.ErrWrongEmbeddingDim)
	}
	if topK <= 0 {
		topK = 10
	}

	vec := pgvector.NewVector(embedding)
	rows, err := d.pool.Query(ctx,
		`SELECT event_id, document_id, document_source, sentence, predicate, score,
		        (embeddings <=> $1) AS cosine_distance
		 FROM embedded_knowledge
		 WHERE collection_id = $2
		 ORDER BY embeddings <=> $1
		 LIMIT $3`,
		vec, collectionID, topK,
	)
	if err != nil {
		return nil, normalize(d.name, "search_similar", err)
	}
	defer rows.Close()

	var hits []store.VectorHit
	for rows.Next() {
		var h store.VectorHit
		if err := rows.Scan(&h.EventID, &h.DocumentID, &h.DocumentSource, &h.Sentence, &h.Predicate, &h.Score, &h.CosineDistance); err != nil {
			return nil, normalize(d.name, "search_similar", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, normalize(d.name, "search_similar", err)
	}
	return hits, nil
}

func (d *VectorDriver) ReadByKeys(ctx context.Context, collectionID string, keys []store.Key) ([]*domain.SemanticTriple, error) {
	return nil, store.Unsupported(d.name, "read_by_keys")
}

func (d *VectorDriver) ReadSession(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error) {
	return nil, store.Unsupported(d.name, "read_session")
}

func (d *VectorDriver) Close() error {
	d.pool.Close()
	return nil
}
