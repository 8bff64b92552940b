package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cognidex/cognidex/internal/api"
	"github.com/cognidex/cognidex/internal/domain"
)

// Discoverer resolves one discovery query.
type Discoverer interface {
	Discover(ctx context.Context, queryText, collectionID string, topK int, sessionID string) ([]*domain.DiscoveredKnowledge, error)
}

// DiscoverHandler serves hybrid-retrieval queries.
type DiscoverHandler struct {
	svc         Discoverer
	timeout     time.Duration
	defaultTopK int
}

func NewDiscoverHandler(svc Discoverer, timeout time.Duration, defaultTopK int) *DiscoverHandler {
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	return &DiscoverHandler{svc: svc, timeout: timeout, defaultTopK: defaultTopK}
}

type DiscoverRequest struct {
	Query        string `json:"query"`
	CollectionID string `json:"collection_id"`
	TopK         int    `json:"top_k,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

type DiscoveredResponse struct {
	ID             string  `json:"id"`
	DocID          string  `json:"doc_id"`
	DocSource      string  `json:"doc_source,omitempty"`
	Sentence       string  `json:"sentence"`
	Subject        string  `json:"subject,omitempty"`
	Object         string  `json:"object,omitempty"`
	CosineDistance float64 `json:"cosine_distance"`
	Score          float64 `json:"score"`
}

type DiscoverResponse struct {
	Results []*DiscoveredResponse `json:"results"`
}

// Discover runs the query and returns ranked results.
func (h *DiscoverHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.CollectionID == "" {
		api.Error(w, http.StatusBadRequest, "collection_id is required")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = h.defaultTopK
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	results, err := h.svc.Discover(ctx, req.Query, req.CollectionID, topK, req.SessionID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DiscoveredResponse, len(results))
	for i, d := range results {
		responses[i] = &DiscoveredResponse{
			ID:             d.ID,
			DocID:          d.DocID,
			DocSource:      d.DocSource,
			Sentence:       d.Sentence,
			Subject:        d.Subject,
			Object:         d.Object,
			CosineDistance: d.CosineDistance,
			Score:          d.Score,
		}
	}

	api.Success(w, http.StatusOK, DiscoverResponse{Results: responses})
}
