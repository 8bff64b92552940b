// Package domain defines the typed knowledge records shared by every
// storage backend: semantic triples, embedded knowledge, discovery
// results, and insight history entries.
package domain

// Kind identifies a record type. Drivers and the commit coordinator
// route records by kind.
type Kind string

const (
	KindSemanticTriple      Kind = "semantic_triple"
	KindEmbeddedKnowledge   Kind = "embedded_knowledge"
	KindDiscoveredKnowledge Kind = "discovered_knowledge"
	KindInsightKnowledge    Kind = "insight_knowledge"
)

// EmbeddingDim is the protocol-wide embedding vector dimension. It is a
// constant of the wire contract, not a per-record or per-backend setting;
// vectors of any other length are rejected at validation time.
const EmbeddingDim = 384

// Record is implemented by every persistable knowledge record.
type Record interface {
	// RecordKind reports the record type.
	RecordKind() Kind
	// RecordID returns the opaque event id used as the idempotency key.
	RecordID() string
	// CollectionID returns the logical namespace the record belongs to.
	CollectionID() string
	// Validate checks the record's invariants.
	Validate() error
}
