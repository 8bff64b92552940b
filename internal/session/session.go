// Package session persists query/response pairs keyed by session so
// downstream answer synthesis can carry conversational memory.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cognidex/cognidex/internal/commit"
	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/registry"
	"github.com/cognidex/cognidex/internal/store"
	"github.com/cognidex/cognidex/internal/telemetry"
)

// Store appends to and reads a session's insight history. Appends go
// through the commit coordinator; reads go to the index role's primary
// reader.
type Store struct {
	coordinator *commit.Coordinator
	reg         *registry.Registry
	now         func() time.Time
	newID       func() string
}

// New creates a session store.
func New(coordinator *commit.Coordinator, reg *registry.Registry) *Store {
	return &Store{
		coordinator: coordinator,
		reg:         reg,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Append durably records one answered query. The entry is immutable;
// there is no mutation or deletion API.
func (s *Store) Append(ctx context.Context, collectionID, sessionID, query, response string) (*domain.InsightKnowledge, error) {
	insight := &domain.InsightKnowledge{
		ID:         s.newID(),
		Collection: collectionID,
		SessionID:  sessionID,
		Query:      query,
		Response:   response,
		CreatedAt:  s.now().UTC(),
	}

	if _, err := s.coordinator.Commit(ctx, insight); err != nil {
		return nil, fmt.Errorf("append insight: %w", err)
	}
	return insight, nil
}

// History returns the session's entries in insertion order.
func (s *Store) History(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error) {
	ctx, span := telemetry.StartSpan(ctx, "session.history", telemetry.SpanAttributes{
		Session:   sessionID,
		Operation: "history",
	})
	defer span.End()

	if sessionID == "" {
		return nil, domain.ErrMissingSessionID
	}

	primary := s.reg.PrimaryReader(store.RoleIndex)
	if primary == nil {
		err := store.NewError(store.ErrUnavailable, "", "read_session", fmt.Errorf("no healthy index backend"))
		span.SetError(err)
		return nil, err
	}

	history, err := primary.Driver().ReadSession(ctx, sessionID)
	primary.Report(err)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("read session %q: %w", sessionID, err)
	}
	return history, nil
}
