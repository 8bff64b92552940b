package domain

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
)

// EmbeddedKnowledge is one extracted embedding vector with the extraction
// confidence and the evidence it was derived from. Like triples, embedded
// knowledge is immutable once committed.
type EmbeddedKnowledge struct {
	EventID        string
	Collection     string
	Embeddings     []float32
	Score          float64
	DocumentID     string
	DocumentSource string
	Sentence       string
	Predicate      string
	CreatedAt      time.Time
}

func (e *EmbeddedKnowledge) RecordKind() Kind     { return KindEmbeddedKnowledge }
func (e *EmbeddedKnowledge) RecordID() string     { return e.EventID }
func (e *EmbeddedKnowledge) CollectionID() string { return e.Collection }

// Validate checks the record's invariants, including the fixed embedding
// dimension.
func (e *EmbeddedKnowledge) Validate() error {
	if e == nil {
		return NewDomainError(ErrCodeValidation, "embedded knowledge cannot be nil")
	}
	if e.EventID == "" {
		return ErrMissingEventID
	}
	if e.Collection == "" {
		return ErrMissingCollectionID
	}
	if len(e.Embeddings) != EmbeddingDim {
		return ErrWrongEmbeddingDim
	}
	return nil
}

// Fingerprint returns a stable digest of the payload, vector included,
// for duplicate-key payload comparison.
func (e *EmbeddedKnowledge) Fingerprint() string {
	h := fnv.New64a()
	var buf [4]byte
	for _, f := range e.Embeddings {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		h.Write(buf[:])
	}
	return strings.Join([]string{
		e.Collection,
		fmt.Sprintf("%x", h.Sum64()),
		fmt.Sprintf("%.6f", e.Score),
		e.DocumentID, e.DocumentSource,
		e.Sentence, e.Predicate,
	}, "\x1f")
}
