package domain

import (
	"strings"
	"time"
)

// SemanticTriple is one extracted subject-predicate-object statement with
// its supporting evidence. Triples are created once per extraction event
// and are immutable; corrections arrive as new events with new event ids.
type SemanticTriple struct {
	EventID        string
	Collection     string
	Subject        string
	SubjectType    string
	Predicate      string
	PredicateType  string
	Object         string
	ObjectType     string
	Sentence       string
	DocumentID     string
	DocumentSource string
	ImageID        string
	SourceID       string
	CreatedAt      time.Time
}

func (t *SemanticTriple) RecordKind() Kind     { return KindSemanticTriple }
func (t *SemanticTriple) RecordID() string     { return t.EventID }
func (t *SemanticTriple) CollectionID() string { return t.Collection }

// Validate checks the triple's invariants. DocumentID must be non-empty
// but is not resolved against the ingestion pipeline here.
func (t *SemanticTriple) Validate() error {
	if t == nil {
		return NewDomainError(ErrCodeValidation, "triple cannot be nil")
	}
	if t.EventID == "" {
		return ErrMissingEventID
	}
	if t.Collection == "" {
		return ErrMissingCollectionID
	}
	if t.Subject == "" {
		return ErrMissingSubject
	}
	if t.Object == "" {
		return ErrMissingObject
	}
	if t.Sentence == "" {
		return ErrMissingSentence
	}
	if t.DocumentID == "" {
		return ErrMissingDocumentID
	}
	return nil
}

// Fingerprint returns a stable digest of the triple's payload, used by
// drivers to decide whether a duplicate-key write carried an identical
// payload (idempotent redelivery) or a conflicting one.
func (t *SemanticTriple) Fingerprint() string {
	return strings.Join([]string{
		t.Collection,
		t.Subject, t.SubjectType,
		t.Predicate, t.PredicateType,
		t.Object, t.ObjectType,
		t.Sentence,
		t.DocumentID, t.DocumentSource,
		t.ImageID, t.SourceID,
	}, "\x1f")
}
