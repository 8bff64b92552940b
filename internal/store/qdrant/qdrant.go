// Package qdrant implements the vector-role driver on a Qdrant instance
// over its gRPC client.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

// qdrant point ids must be UUIDs or integers; event ids are opaque, so
// point ids are derived deterministically from them.
var pointNamespace = uuid.MustParse("9b1c5f52-7e6a-4f4e-bb0e-3f2f6a8d9c41")

const collectionName = "embedded_knowledge"

// Driver is the vector-role adapter for one Qdrant instance.
type Driver struct {
	name   string
	client *qdrant.Client
}

var _ store.Driver = (*Driver)(nil)

// New connects to Qdrant at host:port and ensures the embedding
// collection exists with cosine distance at the protocol dimension.
func New(ctx context.Context, name, addr string) (*Driver, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("malformed qdrant address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("malformed qdrant port %q: %w", portStr, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	exists, err := client.CollectionExists(ctx, collectionName)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check qdrant collection: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(domain.EmbeddingDim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create qdrant collection: %w", err)
		}
	}

	return &Driver{name: name, client: client}, nil
}

func (d *Driver) Name() string        { return d.name }
func (d *Driver) Kind() string        { return "qdrant" }
func (d *Driver) Roles() []store.Role { return []store.Role{store.RoleVector} }

func (d *Driver) Write(ctx context.Context, rec domain.Record) (store.WriteOutcome, error) {
	emb, ok := rec.(*domain.EmbeddedKnowledge)
	if !ok {
		return store.WriteOutcome{}, store.Unsupported(d.name, "write:"+string(rec.RecordKind()))
	}
	if len(emb.Embeddings) != domain.EmbeddingDim {
		return store.WriteOutcome{}, store.NewError(store.ErrSchemaViolation, d.name, "write_embedding", domain.ErrWrongEmbeddingDim)
	}

	pointID := uuid.NewSHA1(pointNamespace, []byte(emb.EventID)).String()

	// Points are keyed by event id, so a redelivery lands on the same
	// point. Compare the stored fingerprint before upserting to tell an
	// idempotent duplicate from a conflicting payload.
	existing, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collectionName,
		Ids:            []*qdrant.PointId{qdrant.NewID(pointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}
	if len(existing) > 0 {
		if existing[0].Payload["fingerprint"].GetStringValue() != emb.Fingerprint() {
			return store.WriteOutcome{}, store.NewError(store.ErrInconsistent, d.name, "write_embedding", nil)
		}
		return store.WriteOutcome{Backend: d.name, Deduplicated: true}, nil
	}

	_, err = d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(pointID),
			Vectors: qdrant.NewVectors(emb.Embeddings...),
			Payload: qdrant.NewValueMap(map[string]any{
				"event_id":        emb.EventID,
				"collection_id":   emb.Collection,
				"document_id":     emb.DocumentID,
				"document_source": emb.DocumentSource,
				"sentence":        emb.Sentence,
				"predicate":       emb.Predicate,
				"score":           emb.Score,
				"fingerprint":     emb.Fingerprint(),
			}),
		}},
	})
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}
	return store.WriteOutcome{Backend: d.name}, nil
}

func (d *Driver) SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	if len(embedding) != domain.EmbeddingDim {
		return nil, store.NewError(store.ErrSchemaViolation, d.name, "search_similar", domain.ErrWrongEmbeddingDim)
	}
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("collection_id", collectionID),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, normalize(d.name, "search_similar", err)
	}

	hits := make([]store.VectorHit, 0, len(points))
	for _, p := range points {
		payload := p.Payload
		hits = append(hits, store.VectorHit{
			EventID:        payload["event_id"].GetStringValue(),
			DocumentID:     payload["document_id"].GetStringValue(),
			DocumentSource: payload["document_source"].GetStringValue(),
			Sentence:       payload["sentence"].GetStringValue(),
			Predicate:      payload["predicate"].GetStringValue(),
			Score:          payload["score"].GetDoubleValue(),
			// Qdrant reports cosine similarity; the contract wants distance.
			CosineDistance: 1 - float64(p.Score),
		})
	}
	return hits, nil
}

func (d *Driver) ReadByKeys(ctx context.Context, collectionID string, keys []store.Key) ([]*domain.SemanticTriple, error) {
	return nil, store.Unsupported(d.name, "read_by_keys")
}

func (d *Driver) ReadSession(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error) {
	return nil, store.Unsupported(d.name, "read_session")
}

func (d *Driver) Close() error {
	return d.client.Close()
}
