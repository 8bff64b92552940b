package domain

import "time"

// DiscoveredKnowledge is a ranked hit produced by the discovery engine.
// It is recomputed per query and only persisted when audit storage is
// configured; it is never ingested directly.
type DiscoveredKnowledge struct {
	ID             string
	Collection     string
	SessionID      string
	Query          string
	QueryEmbedding []float32
	DocID          string
	DocSource      string
	Sentence       string
	Subject        string
	Object         string
	// CosineDistance is 1 - cosine similarity: 0.0 means identical
	// direction, 2.0 opposite.
	CosineDistance float64
	Score          float64
	CreatedAt      time.Time
}

func (d *DiscoveredKnowledge) RecordKind() Kind     { return KindDiscoveredKnowledge }
func (d *DiscoveredKnowledge) RecordID() string     { return d.ID }
func (d *DiscoveredKnowledge) CollectionID() string { return d.Collection }

func (d *DiscoveredKnowledge) Validate() error {
	if d == nil {
		return NewDomainError(ErrCodeValidation, "discovered knowledge cannot be nil")
	}
	if d.ID == "" {
		return ErrMissingEventID
	}
	if d.Collection == "" {
		return ErrMissingCollectionID
	}
	if d.Query == "" {
		return ErrMissingQuery
	}
	if d.CosineDistance < 0 || d.CosineDistance > 2 {
		return NewDomainError(ErrCodeValidation, "cosine distance must be within [0, 2]")
	}
	return nil
}
