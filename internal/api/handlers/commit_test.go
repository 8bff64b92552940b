package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cognidex/cognidex/internal/commit"
	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

type MockCommitter struct {
	mock.Mock
}

func (m *MockCommitter) Commit(ctx context.Context, rec domain.Record) (*commit.Receipt, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commit.Receipt), args.Error(1)
}

func postJSON(t *testing.T, path string, body string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
}

func TestCommitHandler_CreateTriple_Success(t *testing.T) {
	mockCommitter := new(MockCommitter)
	handler := NewCommitHandler(mockCommitter, 5*time.Second)

	receipt := &commit.Receipt{
		EventID: "ev-1",
		Kind:    domain.KindSemanticTriple,
		Outcomes: []commit.DriverOutcome{
			{Backend: "pg-main", Role: store.RoleIndex, Status: commit.StatusOK, Attempts: 1},
		},
	}
	mockCommitter.On("Commit", mock.Anything, mock.MatchedBy(func(rec domain.Record) bool {
		triple, ok := rec.(*domain.SemanticTriple)
		return ok && triple.EventID == "ev-1" && triple.Subject == "curie"
	})).Return(receipt, nil)

	body := `{
		"event_id": "ev-1",
		"collection_id": "col-1",
		"subject": "curie",
		"predicate": "discovered",
		"object": "radium",
		"sentence": "Marie Curie discovered radium.",
		"document_id": "doc-1"
	}`
	w := httptest.NewRecorder()
	handler.CreateTriple(w, postJSON(t, "/v1/triples", body))

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ev-1", data["event_id"])
	outcomes := data["outcomes"].([]interface{})
	require.Len(t, outcomes, 1)
	mockCommitter.AssertExpectations(t)
}

func TestCommitHandler_CreateEmbedding_Success(t *testing.T) {
	mockCommitter := new(MockCommitter)
	handler := NewCommitHandler(mockCommitter, 5*time.Second)

	receipt := &commit.Receipt{EventID: "ev-2", Kind: domain.KindEmbeddedKnowledge}
	mockCommitter.On("Commit", mock.Anything, mock.MatchedBy(func(rec domain.Record) bool {
		emb, ok := rec.(*domain.EmbeddedKnowledge)
		return ok && emb.EventID == "ev-2" && len(emb.Embeddings) == 3
	})).Return(receipt, nil)

	body := `{
		"event_id": "ev-2",
		"collection_id": "col-1",
		"embeddings": [0.1, 0.2, 0.3],
		"score": 0.9,
		"document_id": "doc-1",
		"sentence": "Marie Curie discovered radium."
	}`
	w := httptest.NewRecorder()
	handler.CreateEmbedding(w, postJSON(t, "/v1/embeddings", body))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockCommitter.AssertExpectations(t)
}

func TestCommitHandler_InvalidBody(t *testing.T) {
	handler := NewCommitHandler(new(MockCommitter), 0)

	w := httptest.NewRecorder()
	handler.CreateTriple(w, postJSON(t, "/v1/triples", "{not json"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommitHandler_ValidationErrorMapsToBadRequest(t *testing.T) {
	mockCommitter := new(MockCommitter)
	handler := NewCommitHandler(mockCommitter, 0)

	receipt := &commit.Receipt{EventID: "ev-3"}
	mockCommitter.On("Commit", mock.Anything, mock.Anything).Return(receipt,
		store.NewError(store.ErrSchemaViolation, "", "commit", domain.ErrWrongEmbeddingDim))

	body := `{"event_id":"ev-3","collection_id":"col-1","embeddings":[0.1],"document_id":"doc-1","sentence":"s"}`
	w := httptest.NewRecorder()
	handler.CreateEmbedding(w, postJSON(t, "/v1/embeddings", body))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "schema_violation", resp["kind"])
}

func TestCommitHandler_NoDurableWriteMapsToServiceUnavailable(t *testing.T) {
	mockCommitter := new(MockCommitter)
	handler := NewCommitHandler(mockCommitter, 0)

	receipt := &commit.Receipt{EventID: "ev-4"}
	mockCommitter.On("Commit", mock.Anything, mock.Anything).Return(receipt, commit.ErrNoDurableWrite)

	body := `{"event_id":"ev-4","collection_id":"col-1","subject":"a","predicate":"p","object":"b","sentence":"s","document_id":"d"}`
	w := httptest.NewRecorder()
	handler.CreateTriple(w, postJSON(t, "/v1/triples", body))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
