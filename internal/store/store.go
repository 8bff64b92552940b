// Package store defines the capability-typed driver contract every
// physical backend implements, and the shared error taxonomy drivers
// translate their native errors into.
package store

import (
	"context"
	"fmt"

	"github.com/cognidex/cognidex/internal/domain"
)

// Role is a class of storage capability a backend may provide.
type Role string

const (
	RoleIndex  Role = "index"
	RoleVector Role = "vector"
	RoleGraph  Role = "graph"
)

// ParseRole converts a configuration string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleIndex, RoleVector, RoleGraph:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown storage role %q", s)
}

// Key identifies the supporting context of a vector hit in the index
// role. Embeddings and triples share no enforced foreign key across
// backends; (document id, sentence) is the best-effort join key.
type Key struct {
	DocumentID string
	Sentence   string
}

// VectorHit is one nearest-neighbor result from a vector-role driver.
type VectorHit struct {
	EventID        string
	DocumentID     string
	DocumentSource string
	Sentence       string
	Predicate      string
	// Score is the extraction confidence stored with the embedding.
	Score float64
	// CosineDistance is 1 - cosine similarity against the query vector.
	CosineDistance float64
}

// WriteOutcome describes an accepted write.
type WriteOutcome struct {
	Backend string
	// Deduplicated is true when the write hit an existing record with an
	// identical payload and was normalized to success.
	Deduplicated bool
}

// Driver is the role-specific adapter for one physical backend instance.
// Implementations must be safe for concurrent use; connection pooling is
// the driver's responsibility. Operations outside the driver's declared
// roles fail with an UnsupportedOperation error.
type Driver interface {
	// Name is the configured instance name, unique within the registry.
	Name() string
	// Kind is the backend vendor identifier (postgres, qdrant, ...).
	Kind() string
	// Roles reports which storage roles the driver implements.
	Roles() []Role

	// Write durably commits one record.
	Write(ctx context.Context, rec domain.Record) (WriteOutcome, error)

	// SearchSimilar performs nearest-neighbor search within a collection.
	// Vector-role drivers only.
	SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]VectorHit, error)

	// ReadByKeys resolves triples by (document id, sentence) join keys.
	// Index- and graph-role drivers only.
	ReadByKeys(ctx context.Context, collectionID string, keys []Key) ([]*domain.SemanticTriple, error)

	// ReadSession returns a session's insight history in insertion order.
	// Index-role drivers only.
	ReadSession(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error)

	// Close releases the driver's resources.
	Close() error
}

// HasRole reports whether the driver declares the given role.
func HasRole(d Driver, role Role) bool {
	for _, r := range d.Roles() {
		if r == role {
			return true
		}
	}
	return false
}
