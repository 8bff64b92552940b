//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognidex/cognidex/internal/api/handlers"
	"github.com/cognidex/cognidex/internal/commit"
	"github.com/cognidex/cognidex/internal/discovery"
	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/registry"
	"github.com/cognidex/cognidex/internal/server"
	"github.com/cognidex/cognidex/internal/session"
	"github.com/cognidex/cognidex/internal/store"
	"github.com/cognidex/cognidex/internal/store/sqlite"
)

// memVector is an in-process vector-role driver so the suite does not
// need an external vector database.
type memVector struct {
	mu      sync.Mutex
	records map[string]*domain.EmbeddedKnowledge
}

var _ store.Driver = (*memVector)(nil)

func newMemVector() *memVector {
	return &memVector{records: make(map[string]*domain.EmbeddedKnowledge)}
}

func (m *memVector) Name() string        { return "mem-vector" }
func (m *memVector) Kind() string        { return "memory" }
func (m *memVector) Roles() []store.Role { return []store.Role{store.RoleVector} }
func (m *memVector) Close() error        { return nil }

func (m *memVector) Write(ctx context.Context, rec domain.Record) (store.WriteOutcome, error) {
	emb, ok := rec.(*domain.EmbeddedKnowledge)
	if !ok {
		return store.WriteOutcome{}, store.Unsupported(m.Name(), "write:"+string(rec.RecordKind()))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[emb.EventID]; ok {
		if existing.Fingerprint() != emb.Fingerprint() {
			return store.WriteOutcome{}, store.NewError(store.ErrInconsistent, m.Name(), "write_embedding", nil)
		}
		return store.WriteOutcome{Backend: m.Name(), Deduplicated: true}, nil
	}
	m.records[emb.EventID] = emb
	return store.WriteOutcome{Backend: m.Name()}, nil
}

func (m *memVector) SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []store.VectorHit
	for _, emb := range m.records {
		if emb.Collection != collectionID {
			continue
		}
		hits = append(hits, store.VectorHit{
			EventID:        emb.EventID,
			DocumentID:     emb.DocumentID,
			DocumentSource: emb.DocumentSource,
			Sentence:       emb.Sentence,
			Predicate:      emb.Predicate,
			Score:          emb.Score,
			CosineDistance: cosineDistance(embedding, emb.Embeddings),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].CosineDistance < hits[j].CosineDistance })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *memVector) ReadByKeys(ctx context.Context, collectionID string, keys []store.Key) ([]*domain.SemanticTriple, error) {
	return nil, store.Unsupported(m.Name(), "read_by_keys")
}

func (m *memVector) ReadSession(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error) {
	return nil, store.Unsupported(m.Name(), "read_session")
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// textEmbedder maps known query texts to fixed vectors.
type textEmbedder struct {
	vectors map[string][]float32
}

func (e *textEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return unitVector(domain.EmbeddingDim - 1), nil
}

func unitVector(hot int) []float32 {
	v := make([]float32, domain.EmbeddingDim)
	v[hot] = 1
	return v
}

type testEnv struct {
	server   *httptest.Server
	embedder *textEmbedder
}

// newTestEnv wires the full stack: a sqlite index backend, an in-process
// vector backend, and the real HTTP surface.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	index, err := sqlite.New(ctx, "e2e-index", ":memory:")
	require.NoError(t, err)

	reg := registry.New([]store.Driver{index, newMemVector()})
	t.Cleanup(func() { reg.Close() })

	coordinator := commit.New(reg)
	sessions := session.New(coordinator, reg)
	embedder := &textEmbedder{vectors: make(map[string][]float32)}
	engine := discovery.New(reg, embedder)

	router := server.NewRouter(server.RouterConfig{
		CommitHandler:   handlers.NewCommitHandler(coordinator, 0),
		DiscoverHandler: handlers.NewDiscoverHandler(engine, 0, 10),
		SessionHandler:  handlers.NewSessionHandler(sessions),
		BackendsHandler: handlers.NewBackendsHandler(reg),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, embedder: embedder}
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Kind  string          `json:"kind"`
}

func (env *testEnv) post(t *testing.T, path string, body any) (int, apiEnvelope) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return decodeEnvelope(t, resp)
}

func (env *testEnv) get(t *testing.T, path string) (int, apiEnvelope) {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	require.NoError(t, err)
	return decodeEnvelope(t, resp)
}

func decodeEnvelope(t *testing.T, resp *http.Response) (int, apiEnvelope) {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope apiEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	return resp.StatusCode, envelope
}
