package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cognidex/cognidex/internal/api"
	"github.com/cognidex/cognidex/internal/commit"
	"github.com/cognidex/cognidex/internal/domain"
)

// Committer fans one record out to the configured backends.
type Committer interface {
	Commit(ctx context.Context, rec domain.Record) (*commit.Receipt, error)
}

// CommitHandler ingests extraction events.
type CommitHandler struct {
	committer Committer
	timeout   time.Duration
}

func NewCommitHandler(committer Committer, timeout time.Duration) *CommitHandler {
	return &CommitHandler{committer: committer, timeout: timeout}
}

type TripleRequest struct {
	EventID        string `json:"event_id"`
	CollectionID   string `json:"collection_id"`
	Subject        string `json:"subject"`
	SubjectType    string `json:"subject_type,omitempty"`
	Predicate      string `json:"predicate"`
	PredicateType  string `json:"predicate_type,omitempty"`
	Object         string `json:"object"`
	ObjectType     string `json:"object_type,omitempty"`
	Sentence       string `json:"sentence"`
	DocumentID     string `json:"document_id"`
	DocumentSource string `json:"document_source,omitempty"`
	ImageID        string `json:"image_id,omitempty"`
	SourceID       string `json:"source_id,omitempty"`
}

type EmbeddingRequest struct {
	EventID        string    `json:"event_id"`
	CollectionID   string    `json:"collection_id"`
	Embeddings     []float32 `json:"embeddings"`
	Score          float64   `json:"score"`
	DocumentID     string    `json:"document_id"`
	DocumentSource string    `json:"document_source,omitempty"`
	Sentence       string    `json:"sentence"`
	Predicate      string    `json:"predicate,omitempty"`
}

// CreateTriple commits one semantic triple.
func (h *CommitHandler) CreateTriple(w http.ResponseWriter, r *http.Request) {
	var req TripleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	triple := &domain.SemanticTriple{
		EventID:        req.EventID,
		Collection:     req.CollectionID,
		Subject:        req.Subject,
		SubjectType:    req.SubjectType,
		Predicate:      req.Predicate,
		PredicateType:  req.PredicateType,
		Object:         req.Object,
		ObjectType:     req.ObjectType,
		Sentence:       req.Sentence,
		DocumentID:     req.DocumentID,
		DocumentSource: req.DocumentSource,
		ImageID:        req.ImageID,
		SourceID:       req.SourceID,
	}

	h.commit(w, r, triple)
}

// CreateEmbedding commits one embedded knowledge record.
func (h *CommitHandler) CreateEmbedding(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	emb := &domain.EmbeddedKnowledge{
		EventID:        req.EventID,
		Collection:     req.CollectionID,
		Embeddings:     req.Embeddings,
		Score:          req.Score,
		DocumentID:     req.DocumentID,
		DocumentSource: req.DocumentSource,
		Sentence:       req.Sentence,
		Predicate:      req.Predicate,
	}

	h.commit(w, r, emb)
}

func (h *CommitHandler) commit(w http.ResponseWriter, r *http.Request, rec domain.Record) {
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	receipt, err := h.committer.Commit(ctx, rec)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, receipt)
}
