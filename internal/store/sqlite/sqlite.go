// Package sqlite implements the index-role driver on an embedded SQLite
// database via modernc.org/sqlite (pure Go, no cgo). It mirrors the
// PostgreSQL index schema so a single-node deployment needs no external
// relational store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS semantic_knowledge (
	event_id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	subject TEXT NOT NULL,
	subject_type TEXT NOT NULL DEFAULT '',
	predicate TEXT NOT NULL DEFAULT '',
	predicate_type TEXT NOT NULL DEFAULT '',
	object TEXT NOT NULL,
	object_type TEXT NOT NULL DEFAULT '',
	sentence TEXT NOT NULL,
	document_id TEXT NOT NULL,
	document_source TEXT NOT NULL DEFAULT '',
	image_id TEXT,
	source_id TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_semantic_join
	ON semantic_knowledge (collection_id, document_id, sentence);

CREATE TABLE IF NOT EXISTS discovered_knowledge (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	session_id TEXT,
	query TEXT NOT NULL,
	doc_id TEXT NOT NULL DEFAULT '',
	doc_source TEXT NOT NULL DEFAULT '',
	sentence TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	object TEXT NOT NULL DEFAULT '',
	cosine_distance REAL NOT NULL,
	score REAL NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS insight_knowledge (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insight_session
	ON insight_knowledge (session_id, created_at, id);
`

// Driver is the index-role adapter for one SQLite database file.
type Driver struct {
	name string
	db   *sql.DB
}

var _ store.Driver = (*Driver)(nil)

// New opens (or creates) the database at path and ensures the index
// schema exists. Use ":memory:" for tests.
func New(ctx context.Context, name, path string) (*Driver, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Each pool connection gets its own in-memory database, so the
		// pool must stay at a single connection.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare sqlite schema: %w", err)
	}

	return &Driver{name: name, db: db}, nil
}

func (d *Driver) Name() string        { return d.name }
func (d *Driver) Kind() string        { return "sqlite" }
func (d *Driver) Roles() []store.Role { return []store.Role{store.RoleIndex} }

func (d *Driver) Write(ctx context.Context, rec domain.Record) (store.WriteOutcome, error) {
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

func (d *Driver) writeTriple(ctx context.Context, t *domain.SemanticTriple) (store.WriteOutcome, error) {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO semantic_knowledge
			(event_id, collection_id, subject, subject_type, predicate, predicate_type,
			 object, object_type, sentence, document_id, document_source, image_id, source_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.EventID, t.Collection, t.Subject, t.SubjectType, t.Predicate, t.PredicateType,
		t.Object, t.ObjectType, t.Sentence, t.DocumentID, t.DocumentSource,
		nullable(t.ImageID), nullable(t.SourceID), createdAt,
	)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_triple", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return store.WriteOutcome{Backend: d.name}, nil
	}

	existing, err := d.readTriple(ctx, t.EventID)
	if err != nil {
		return store.WriteOutcome{}, err
	}
	if existing.Fingerprint() != t.Fingerprint() {
		return store.WriteOutcome{}, store.NewError(store.ErrInconsistent, d.name, "write_triple", nil)
	}
	return store.WriteOutcome{Backend: d.name, Deduplicated: true}, nil
}

func (d *Driver) readTriple(ctx context.Context, eventID string) (*domain.SemanticTriple, error) {
	var t domain.SemanticTriple
	var imageID, sourceID sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT event_id, collection_id, subject, subject_type, predicate, predicate_type,
		        object, object_type, sentence, document_id, document_source, image_id, source_id, created_at
		 FROM semantic_knowledge WHERE event_id = ?`,
		eventID,
	).Scan(&t.EventID, &t.Collection, &t.Subject, &t.SubjectType, &t.Predicate, &t.PredicateType,
		&t.Object, &t.ObjectType, &t.Sentence, &t.DocumentID, &t.DocumentSource, &imageID, &sourceID, &t.CreatedAt)
	if err != nil {
		return nil, normalize(d.name, "read_triple", err)
	}
	t.ImageID = imageID.String
	t.SourceID = sourceID.String
	return &t, nil
}

func (d *Driver) writeDiscovery(ctx context.Context, disc *domain.DiscoveredKnowledge) (store.WriteOutcome, error) {
	createdAt := disc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO discovered_knowledge
			(id, collection_id, session_id, query, doc_id, doc_source, sentence,
			 subject, object, cosine_distance, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		disc.ID, disc.Collection, nullable(disc.SessionID), disc.Query,
		disc.DocID, disc.DocSource, disc.Sentence, disc.Subject, disc.Object,
		disc.CosineDistance, disc.Score, createdAt,
	)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_discovery", err)
	}
	n, _ := res.RowsAffected()
	return store.WriteOutcome{Backend: d.name, Deduplicated: n == 0}, nil
}

func (d *Driver) writeInsight(ctx context.Context, ins *domain.InsightKnowledge) (store.WriteOutcome, error) {
	createdAt := ins.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO insight_knowledge (id, collection_id, session_id, query, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ins.ID, ins.Collection, ins.SessionID, ins.Query, ins.Response, createdAt,
	)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_insight", err)
	}
	n, _ := res.RowsAffected()
	return store.WriteOutcome{Backend: d.name, Deduplicated: n == 0}, nil
}

func (d *Driver) SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	return nil, store.Unsupported(d.name, "search_similar")
}

func (d *Driver) ReadByKeys(ctx context.Context, collectionID string, keys []store.Key) ([]*domain.SemanticTriple, error) {
	if len(keys) == 0 {
		return []*domain.SemanticTriple{}, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(keys)*2+1)
	args = append(args, collectionID)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(document_id = ? AND sentence = ?)")
		args = append(args, k.DocumentID, k.Sentence)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT event_id, collection_id, subject, subject_type, predicate, predicate_type,
		        object, object_type, sentence, document_id, document_source, image_id, source_id, created_at
		 FROM semantic_knowledge
		 WHERE collection_id = ? AND (`+sb.String()+`)`,
		args...,
	)
	if err != nil {
		return nil, normalize(d.name, "read_by_keys", err)
	}
	defer rows.Close()

	var results []*domain.SemanticTriple
	for rows.Next() {
		var t domain.SemanticTriple
		var imageID, sourceID sql.NullString
		if err := rows.Scan(&t.EventID, &t.Collection, &t.Subject, &t.SubjectType, &t.Predicate, &t.PredicateType,
			&t.Object, &t.ObjectType, &t.Sentence, &t.DocumentID, &t.DocumentSource, &imageID, &sourceID, &t.CreatedAt); err != nil {
			return nil, normalize(d.name, "read_by_keys", err)
		}
		t.ImageID = imageID.String
		t.SourceID = sourceID.String
		results = append(results, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, normalize(d.name, "read_by_keys", err)
	}
	return results, nil
}

func (d *Driver) ReadSession(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, collection_id, session_id, query, response, created_at
		 FROM insight_knowledge
		 WHERE session_id = ?
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

func (d *Driver) Close() error {
	return d.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// normalize translates sqlite errors into the shared taxonomy. The
// modernc driver exposes failures as plain errors, so classification is
// by message.
func normalize(backend, op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.NewError(store.ErrTimeout, backend, op, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return store.NewError(store.ErrConflict, backend, op, err)
	case strings.Contains(msg, "constraint failed"), strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"):
		return store.NewError(store.ErrSchemaViolation, backend, op, err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"):
		return store.NewError(store.ErrTransient, backend, op, err)
	case strings.Contains(msg, "unable to open"):
		return store.NewError(store.ErrUnavailable, backend, op, err)
	}
	return store.NewError(store.ErrTransient, backend, op, err)
}
