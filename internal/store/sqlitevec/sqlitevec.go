// Package sqlitevec implements the vector-role driver on an embedded
// SQLite database with the sqlite-vec extension. It gives a deployment a
// zero-infrastructure vector backend, typically as a redundant secondary
// next to pgvector or Qdrant.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

// Driver is the vector-role adapter for one sqlite-vec database file.
type Driver struct {
	name string
	db   *sql.DB
}

var _ store.Driver = (*Driver)(nil)

// New opens (or creates) the database at path and prepares the metadata
// table plus the vec0 virtual table. Use ":memory:" for tests.
func New(ctx context.Context, name, path string) (*Driver, error) {
	sqlite_vec.Auto()

	if path == "" {
		return nil, fmt.Errorf("sqlite-vec database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite-vec database: %w", err)
	}
	if path == ":memory:" {
		// Each pool connection gets its own in-memory database, so the
		// pool must stay at a single connection.
		db.SetMaxOpenConns(1)
	}

	var vecVersion string
	if err := db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so embedded_documents maps
	// string event ids onto them and carries the join metadata.
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS embedded_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			collection_id TEXT NOT NULL,
			document_id TEXT NOT NULL DEFAULT '',
			document_source TEXT NOT NULL DEFAULT '',
			sentence TEXT NOT NULL DEFAULT '',
			predicate TEXT NOT NULL DEFAULT '',
			score REAL NOT NULL DEFAULT 0,
			fingerprint TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create embedded_documents table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS embedded_vectors USING vec0(embedding float[%d] distance_metric=cosine)`,
		domain.EmbeddingDim,
	)
	if _, err := db.ExecContext(ctx, createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vec0 table: %w", err)
	}

	return &Driver{name: name, db: db}, nil
}

func (d *Driver) Name() string        { return d.name }
func (d *Driver) Kind() string        { return "sqlite-vec" }
func (d *Driver) Roles() []store.Role { return []store.Role{store.RoleVector} }

func (d *Driver) Write(ctx context.Context, rec domain.Record) (store.WriteOutcome, error) {
	emb, ok := rec.(*domain.EmbeddedKnowledge)
	if !ok {
		return store.WriteOutcome{}, store.Unsupported(d.name, "write:"+string(rec.RecordKind()))
	}
	if len(emb.Embeddings) != domain.EmbeddingDim {
		return store.WriteOutcome{}, store.NewError(store.ErrSchemaViolation, d.name, "write_embedding", domain.ErrWrongEmbeddingDim)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}
	defer tx.Rollback()

	var existingFingerprint string
	err = tx.QueryRowContext(ctx,
		`SELECT fingerprint FROM embedded_documents WHERE event_id = ?`, emb.EventID,
	).Scan(&existingFingerprint)
	switch {
	case err == nil:
		if existingFingerprint != emb.Fingerprint() {
			return store.WriteOutcome{}, store.NewError(store.ErrInconsistent, d.name, "write_embedding", nil)
		}
		return store.WriteOutcome{Backend: d.name, Deduplicated: true}, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO embedded_documents
			(event_id, collection_id, document_id, document_source, sentence, predicate, score, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		emb.EventID, emb.Collection, emb.DocumentID, emb.DocumentSource,
		emb.Sentence, emb.Predicate, emb.Score, emb.Fingerprint(),
	)
	if err != nil {
		// A concurrent write of the same event id can commit between the
		// fingerprint check above and this insert. The committed row
		// decides whether this write was a redelivery.
		if isConstraintViolation(err) {
			tx.Rollback()
			return d.resolveDuplicate(ctx, emb)
		}
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO embedded_vectors(rowid, embedding) VALUES (?, ?)`,
		rowID, serializeFloat32(emb.Embeddings),
	); err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}

	if err := tx.Commit(); err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}
	return store.WriteOutcome{Backend: d.name}, nil
}

// resolveDuplicate settles a write that lost an insert race on event_id.
// The winner's row is committed by now, so its stored fingerprint tells
// an idempotent redelivery apart from a divergent payload.
func (d *Driver) resolveDuplicate(ctx context.Context, emb *domain.EmbeddedKnowledge) (store.WriteOutcome, error) {
	var stored string
	err := d.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM embedded_documents WHERE event_id = ?`, emb.EventID,
	).Scan(&stored)
	if err != nil {
		return store.WriteOutcome{}, normalize(d.name, "write_embedding", err)
	}
	if stored != emb.Fingerprint() {
		return store.WriteOutcome{}, store.NewError(store.ErrInconsistent, d.name, "write_embedding", nil)
	}
	return store.WriteOutcome{Backend: d.name, Deduplicated: true}, nil
}

func (d *Driver) SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	if len(embedding) != domain.EmbeddingDim {
		return nil, store.NewError(store.ErrSchemaViolation, d.name, "search_similar", domain.ErrWrongEmbeddingDim)
	}
	if topK <= 0 {
		topK = 10
	}

	// vec0 KNN cannot pre-filter on joined columns, so over-fetch and
	// filter by collection afterwards.
	k := topK * 8
	if k > 256 {
		k = 256
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			doc.event_id,
			doc.collection_id,
			doc.document_id,
			doc.document_source,
			doc.sentence,
			doc.predicate,
			doc.score,
			ve.distance
		FROM embedded_vectors ve
		INNER JOIN embedded_documents doc ON doc.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, normalize(d.name, "search_similar", err)
	}
	defer rows.Close()

	var hits []store.VectorHit
	for rows.Next() {
		var h store.VectorHit
		var collection string
		if err := rows.Scan(&h.EventID, &collection, &h.DocumentID, &h.DocumentSource,
			&h.Sentence, &h.Predicate, &h.Score, &h.CosineDistance); err != nil {
			return nil, normalize(d.name, "search_similar", err)
		}
		if collection != collectionID {
			continue
		}
		hits = append(hits, h)
		if len(hits) == topK {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, normalize(d.name, "search_similar", err)
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
	return d.db.Close()
}

// serializeFloat32 converts a vector to the little-endian BLOB format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// isConstraintViolation reports whether err is a SQLite constraint
// failure, such as the UNIQUE index on event_id.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// normalize translates sqlite errors into the shared taxonomy.
func normalize(backend, op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.NewError(store.ErrTimeout, backend, op, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return store.NewError(store.ErrConflict, backend, op, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return store.NewError(store.ErrTransient, backend, op, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
			return store.NewError(store.ErrUnavailable, backend, op, err)
		}
	}

	if strings.Contains(err.Error(), "no such table") {
		return store.NewError(store.ErrSchemaViolation, backend, op, err)
	}
	return store.NewError(store.ErrTransient, backend, op, err)
}
