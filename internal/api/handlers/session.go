package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cognidex/cognidex/internal/api"
	"github.com/cognidex/cognidex/internal/domain"
)

// SessionService appends to and reads insight session history.
type SessionService interface {
	Append(ctx context.Context, collectionID, sessionID, query, response string) (*domain.InsightKnowledge, error)
	History(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error)
}

// SessionHandler serves conversational session history.
type SessionHandler struct {
	svc SessionService
}

func NewSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type AppendInsightRequest struct {
	CollectionID string `json:"collection_id"`
	Query        string `json:"query"`
	Response     string `json:"response"`
}

type InsightResponse struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	SessionID    string `json:"session_id"`
	Query        string `json:"query"`
	Response     string `json:"response"`
	CreatedAt    string `json:"created_at"`
}

type HistoryResponse struct {
	Insights []*InsightResponse `json:"insights"`
}

// AppendInsight records one answered query in the session.
func (h *SessionHandler) AppendInsight(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req AppendInsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	insight, err := h.svc.Append(r.Context(), req.CollectionID, sessionID, req.Query, req.Response)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, insightResponse(insight))
}

// History returns the session's insights in insertion order.
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	insights, err := h.svc.History(r.Context(), sessionID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*InsightResponse, len(insights))
	for i, ins := range insights {
		responses[i] = insightResponse(ins)
	}

	api.Success(w, http.StatusOK, HistoryResponse{Insights: responses})
}

func insightResponse(ins *domain.InsightKnowledge) *InsightResponse {
	return &InsightResponse{
		ID:           ins.ID,
		CollectionID: ins.Collection,
		SessionID:    ins.SessionID,
		Query:        ins.Query,
		Response:     ins.Response,
		CreatedAt:    ins.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
