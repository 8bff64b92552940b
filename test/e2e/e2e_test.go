//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collection = "col-e2e"

func commitTriple(t *testing.T, env *testEnv, eventID, subject, object, sentence, docID string) {
	t.Helper()
	status, envelope := env.post(t, "/v1/triples", map[string]any{
		"event_id":      eventID,
		"collection_id": collection,
		"subject":       subject,
		"predicate":     "relates_to",
		"object":        object,
		"sentence":      sentence,
		"document_id":   docID,
	})
	require.Equal(t, http.StatusCreated, status, "error: %s", envelope.Error)
}

func commitEmbedding(t *testing.T, env *testEnv, eventID string, vec []float32, sentence, docID string, score float64) {
	t.Helper()
	status, envelope := env.post(t, "/v1/embeddings", map[string]any{
		"event_id":      eventID,
		"collection_id": collection,
		"embeddings":    vec,
		"score":         score,
		"document_id":   docID,
		"sentence":      sentence,
	})
	require.Equal(t, http.StatusCreated, status, "error: %s", envelope.Error)
}

func TestCommitAndDiscoverFlow(t *testing.T) {
	env := newTestEnv(t)

	sentence := "Marie Curie discovered radium in 1898."
	commitTriple(t, env, "evt-t1", "Marie Curie", "radium", sentence, "doc-1")
	commitEmbedding(t, env, "evt-e1", unitVector(0), sentence, "doc-1", 0.9)

	// A farther embedding in the same collection.
	other := "Radium glows faintly in the dark."
	commitTriple(t, env, "evt-t2", "radium", "dark", other, "doc-1")
	commitEmbedding(t, env, "evt-e2", unitVector(1), other, "doc-1", 0.7)

	env.embedder.vectors["who discovered radium"] = unitVector(0)

	status, envelope := env.post(t, "/v1/discover", map[string]any{
		"query":         "who discovered radium",
		"collection_id": collection,
	})
	require.Equal(t, http.StatusOK, status, "error: %s", envelope.Error)

	var result struct {
		Results []struct {
			Sentence       string  `json:"sentence"`
			Subject        string  `json:"subject"`
			Object         string  `json:"object"`
			CosineDistance float64 `json:"cosine_distance"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &result))
	require.Len(t, result.Results, 2)

	// Nearest first, joined against the relational context.
	assert.Equal(t, sentence, result.Results[0].Sentence)
	assert.Equal(t, "Marie Curie", result.Results[0].Subject)
	assert.Equal(t, "radium", result.Results[0].Object)
	assert.Less(t, result.Results[0].CosineDistance, result.Results[1].CosineDistance)
}

func TestDiscoverToleratesOrphanEmbeddings(t *testing.T) {
	env := newTestEnv(t)

	// Embedding with no matching triple in the index.
	sentence := "An unjoined sentence."
	commitEmbedding(t, env, "evt-orphan", unitVector(2), sentence, "doc-orphan", 0.5)
	env.embedder.vectors["orphan query"] = unitVector(2)

	status, envelope := env.post(t, "/v1/discover", map[string]any{
		"query":         "orphan query",
		"collection_id": collection,
	})
	require.Equal(t, http.StatusOK, status)

	var result struct {
		Results []struct {
			Sentence string `json:"sentence"`
			Subject  string `json:"subject"`
			Object   string `json:"object"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &result))
	require.Len(t, result.Results, 1)
	assert.Equal(t, sentence, result.Results[0].Sentence)
	assert.Empty(t, result.Results[0].Subject)
	assert.Empty(t, result.Results[0].Object)
}

func TestIdempotentRedelivery(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"event_id":      "evt-dup",
		"collection_id": collection,
		"subject":       "a",
		"object":        "b",
		"sentence":      "a relates to b",
		"document_id":   "doc-1",
	}

	status, _ := env.post(t, "/v1/triples", body)
	require.Equal(t, http.StatusCreated, status)

	status, envelope := env.post(t, "/v1/triples", body)
	require.Equal(t, http.StatusCreated, status)

	var receipt struct {
		Outcomes []struct {
			Status string `json:"status"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &receipt))
	require.NotEmpty(t, receipt.Outcomes)
	assert.Equal(t, "deduplicated", receipt.Outcomes[0].Status)
}

func TestConflictingRedeliveryRejected(t *testing.T) {
	env := newTestEnv(t)

	commitTriple(t, env, "evt-c1", "a", "b", "a relates to b", "doc-1")

	status, envelope := env.post(t, "/v1/triples", map[string]any{
		"event_id":      "evt-c1",
		"collection_id": collection,
		"subject":       "a",
		"object":        "DIFFERENT",
		"sentence":      "a relates to b",
		"document_id":   "doc-1",
	})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.NotEmpty(t, envelope.Error)
}

func TestEmbeddingDimensionRejected(t *testing.T) {
	env := newTestEnv(t)

	status, envelope := env.post(t, "/v1/embeddings", map[string]any{
		"event_id":      "evt-bad",
		"collection_id": collection,
		"embeddings":    make([]float32, 16),
		"document_id":   "doc-1",
		"sentence":      "s",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, envelope.Error)
}

func TestSessionRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	for _, pair := range [][2]string{{"q1", "r1"}, {"q2", "r2"}} {
		status, envelope := env.post(t, "/v1/sessions/sess-e2e/insights", map[string]any{
			"collection_id": collection,
			"query":         pair[0],
			"response":      pair[1],
		})
		require.Equal(t, http.StatusCreated, status, "error: %s", envelope.Error)
	}

	status, envelope := env.get(t, "/v1/sessions/sess-e2e/history")
	require.Equal(t, http.StatusOK, status)

	var history struct {
		Insights []struct {
			Query    string `json:"query"`
			Response string `json:"response"`
		} `json:"insights"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &history))
	require.Len(t, history.Insights, 2)
	assert.Equal(t, "q1", history.Insights[0].Query)
	assert.Equal(t, "q2", history.Insights[1].Query)
}

func TestBackendsSnapshot(t *testing.T) {
	env := newTestEnv(t)

	status, envelope := env.get(t, "/v1/backends")
	require.Equal(t, http.StatusOK, status)

	var snapshot struct {
		Backends []struct {
			Name    string `json:"name"`
			Healthy bool   `json:"healthy"`
		} `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &snapshot))
	require.Len(t, snapshot.Backends, 2)
	for _, b := range snapshot.Backends {
		assert.True(t, b.Healthy, "backend %s should be healthy", b.Name)
	}
}
