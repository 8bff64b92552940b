package domain

import "time"

// InsightKnowledge is one answered query in a session's history. The
// insight store is append-only; entries are never mutated or deleted.
type InsightKnowledge struct {
	ID         string
	Collection string
	SessionID  string
	Query      string
	Response   string
	CreatedAt  time.Time
}

func (i *InsightKnowledge) RecordKind() Kind     { return KindInsightKnowledge }
func (i *InsightKnowledge) RecordID() string     { return i.ID }
func (i *InsightKnowledge) CollectionID() string { return i.Collection }

func (i *InsightKnowledge) Validate() error {
	if i == nil {
		return NewDomainError(ErrCodeValidation, "insight cannot be nil")
	}
	if i.ID == "" {
		return ErrMissingEventID
	}
	if i.Collection == "" {
		return ErrMissingCollectionID
	}
	if i.SessionID == "" {
		return ErrMissingSessionID
	}
	if i.Query == "" {
		return ErrMissingQuery
	}
	if i.Response == "" {
		return ErrMissingResponse
	}
	return nil
}
