// Package neo4j implements the graph-role driver on a Neo4j instance.
// Triples land as entity nodes joined by predicate relationships, which
// keeps multi-hop traversal available to downstream consumers without
// changing the write contract.
package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

// Driver is the graph-role adapter for one Neo4j instance.
type Driver struct {
	name   string
	driver neo4j.DriverWithContext
}

var _ store.Driver = (*Driver)(nil)

// Config carries Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, name string, cfg Config) (*Driver, error) {
	drv, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		_ = drv.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j: %w", err)
	}
	return &Driver{name: name, driver: drv}, nil
}

func (d *Driver) Name() string        { return d.name }
func (d *Driver) Kind() string        { return "neo4j" }
func (d *Driver) Roles() []store.Role { return []store.Role{store.RoleGraph} }

func (d *Driver) Write(ctx context.Context, rec domain.Record) (store.WriteOutcome, error) {
	t, ok := rec.(*domain.SemanticTriple)
	if !ok {
		return store.WriteOutcome{}, store.Unsupported(d.name, "write:"+string(rec.RecordKind()))
	}

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// MERGE keyed on event_id makes redelivery a no-op.
	dedup, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (bool, error) {
		result, err := tx.Run(ctx, `
			MERGE (s:Entity {name: $subject, type: $subjectType, collection: $collection})
			MERGE (o:Entity {name: $object, type: $objectType, collection: $collection})
			MERGE (s)-[r:STATES {event_id: $eventID}]->(o)
			ON CREATE SET
				r.predicate = $predicate,
				r.predicate_type = $predicateType,
				r.sentence = $sentence,
				r.document_id = $documentID,
				r.document_source = $documentSource,
				r.created = true
			ON MATCH SET r.created = false
			RETURN r.created AS created`,
			map[string]any{
				"eventID":        t.EventID,
				"collection":     t.Collection,
				"subject":        t.Subject,
				"subjectType":    t.SubjectType,
				"predicate":      t.Predicate,
				"predicateType":  t.PredicateType,
				"object":         t.Object,
				"objectType":     t.ObjectType,
				"sentence":       t.Sentence,
				"documentID":     t.DocumentID,
				"documentSource": t.DocumentSource,
			})
		if err != nil {
			return false, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return false, err
		}
		created, _ := record.Get("created")
		createdBool, _ := created.(bool)
		return !createdBool, nil
	})
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_triple", err)
	}
	return store.WriteOutcome{Backend: d.name, Deduplicated: dedup}, nil
}

func (d *Driver) SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	return nil, store.Unsupported(d.name, "search_similar")
}

func (d *Driver) ReadByKeys(ctx context.Context, collectionID string, keys []store.Key) ([]*domain.SemanticTriple, error) {
	if len(keys) == 0 {
		return []*domain.SemanticTriple{}, nil
	}

	params := make([]map[string]any, len(keys))
	for i, k := range keys {
		params[i] = map[string]any{"document_id": k.DocumentID, "sentence": k.Sentence}
	}

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	triples, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*domain.SemanticTriple, error) {
		result, err := tx.Run(ctx, `
			UNWIND $keys AS key
			MATCH (s:Entity {collection: $collection})-[r:STATES]->(o:Entity)
			WHERE r.document_id = key.document_id AND r.sentence = key.sentence
			RETURN r.event_id AS event_id, s.name AS subject, s.type AS subject_type,
			       r.predicate AS predicate, r.predicate_type AS predicate_type,
			       o.name AS object, o.type AS object_type,
			       r.sentence AS sentence, r.document_id AS document_id,
			       r.document_source AS document_source`,
			map[string]any{"keys": params, "collection": collectionID})
		if err != nil {
			return nil, err
		}

		var out []*domain.SemanticTriple
		for result.Next(ctx) {
			rec := result.Record()
			t := &domain.SemanticTriple{Collection: collectionID}
			t.EventID = stringValue(rec, "event_id")
			t.Subject = stringValue(rec, "subject")
			t.SubjectType = stringValue(rec, "subject_type")
			t.Predicate = stringValue(rec, "predicate")
			t.PredicateType = stringValue(rec, "predicate_type")
			t.Object = stringValue(rec, "object")
			t.ObjectType = stringValue(rec, "object_type")
			t.Sentence = stringValue(rec, "sentence")
			t.DocumentID = stringValue(rec, "document_id")
			t.DocumentSource = stringValue(rec, "document_source")
			out = append(out, t)
		}
		return out, result.Err()
	})
	if err != nil {
		return nil, normalize(d.name, "read_by_keys", err)
	}
	return triples, nil
}

func (d *Driver) ReadSession(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error) {
	return nil, store.Unsupported(d.name, "read_session")
}

func (d *Driver) Close() error {
	return d.driver.Close(context.Background())
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// normalize translates neo4j errors into the shared taxonomy.
func normalize(backend, op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.NewError(store.ErrTimeout, backend, op, err)
	}
	if neo4j.IsConnectivityError(err) {
		return store.NewError(store.ErrUnavailable, backend, op, err)
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case neoErr.IsRetriableTransient():
			return store.NewError(store.ErrTransient, backend, op, err)
		case neoErr.Classification() == "ClientError":
			return store.NewError(store.ErrSchemaViolation, backend, op, err)
		}
	}
	return store.NewError(store.ErrTransient, backend, op, err)
}
