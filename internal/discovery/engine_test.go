package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/registry"
	"github.com/cognidex/cognidex/internal/store"
)

type staticEmbedder struct {
	vec []float32
	err error
}

func (s *staticEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.vec != nil {
		return s.vec, nil
	}
	return make([]float32, domain.EmbeddingDim), nil
}

type stubDriver struct {
	name      string
	roles     []store.Role
	hits      []store.VectorHit
	searchErr error
	triples   []*domain.SemanticTriple
	readErr   error

	searchCalls int
}

func (s *stubDriver) Name() string        { return s.name }
func (s *stubDriver) Kind() string        { return "stub" }
func (s *stubDriver) Roles() []store.Role { return s.roles }

func (s *stubDriver) Write(ctx context.Context, rec domain.Record) (store.WriteOutcome, error) {
	return store.WriteOutcome{Backend: s.name}, nil
}

func (s *stubDriver) SearchSimilar(ctx context.Context, embedding []float32, topK int, collectionID string) ([]store.VectorHit, error) {
	s.searchCalls++
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.hits, nil
}

func (s *stubDriver) ReadByKeys(ctx context.Context, collectionID string, keys []store.Key) ([]*domain.SemanticTriple, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.triples, nil
}

func (s *stubDriver) ReadSession(ctx context.Context, sessionID string) ([]*domain.InsightKnowledge, error) {
	return nil, store.Unsupported(s.name, "read_session")
}

func (s *stubDriver) Close() error { return nil }

func hit(docID, sentence string, distance, score float64) store.VectorHit {
	return store.VectorHit{
		EventID:        "ev-" + docID,
		DocumentID:     docID,
		DocumentSource: "corpus",
		Sentence:       sentence,
		CosineDistance: distance,
		Score:          score,
	}
}

func triple(docID, sentence, subject, object string) *domain.SemanticTriple {
	return &domain.SemanticTriple{
		EventID:    "ev-" + docID,
		Collection: "col-1",
		Subject:    subject,
		Predicate:  "relates_to",
		Object:     object,
		Sentence:   sentence,
		DocumentID: docID,
	}
}

func newEngine(t *testing.T, drivers []store.Driver, opts ...Option) *Engine {
	t.Helper()
	eng := New(registry.New(drivers), &staticEmbedder{}, opts...)
	n := 0
	eng.newID = func() string {
		n++
		return fmt.Sprintf("res-%d", n)
	}
	return eng
}

func TestDiscoverRanksByDistanceScoreThenDocID(t *testing.T) {
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-c", "s3", 0.3, 0.9),
		hit("doc-b", "s2", 0.1, 0.5),
		hit("doc-a", "s1", 0.1, 0.8),
	}}
	idx := &stubDriver{name: "idx", roles: []store.Role{store.RoleIndex}, triples: []*domain.SemanticTriple{
		triple("doc-a", "s1", "curie", "radium"),
		triple("doc-b", "s2", "curie", "polonium"),
		triple("doc-c", "s3", "curie", "prize"),
	}}
	eng := newEngine(t, []store.Driver{vec, idx})

	results, err := eng.Discover(context.Background(), "who discovered radium", "col-1", 10, "sess-1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "doc-a", results[0].DocID)
	assert.Equal(t, "doc-b", results[1].DocID)
	assert.Equal(t, "doc-c", results[2].DocID)
}

func TestDiscoverTieBreaksByDocIDWhenScoresEqual(t *testing.T) {
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-z", "s1", 0.2, 0.5),
		hit("doc-a", "s2", 0.2, 0.5),
	}}
	idx := &stubDriver{name: "idx", roles: []store.Role{store.RoleIndex}, triples: []*domain.SemanticTriple{
		triple("doc-z", "s1", "a", "b"),
		triple("doc-a", "s2", "c", "d"),
	}}
	eng := newEngine(t, []store.Driver{vec, idx})

	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc-a", results[0].DocID)
	assert.Equal(t, "doc-z", results[1].DocID)
}

func TestDiscoverOrphanedHitKeepsEmptyContext(t *testing.T) {
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-a", "s1", 0.1, 0.8),
		hit("doc-orphan", "s-missing", 0.2, 0.7),
	}}
	idx := &stubDriver{name: "idx", roles: []store.Role{store.RoleIndex}, triples: []*domain.SemanticTriple{
		triple("doc-a", "s1", "curie", "radium"),
	}}
	eng := newEngine(t, []store.Driver{vec, idx})

	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "curie", results[0].Subject)
	assert.Equal(t, "doc-orphan", results[1].DocID)
	assert.Empty(t, results[1].Subject)
	assert.Empty(t, results[1].Object)
}

func TestDiscoverDegradesWhenIndexJoinFails(t *testing.T) {
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-a", "s1", 0.1, 0.8),
	}}
	idx := &stubDriver{
		name:    "idx",
		roles:   []store.Role{store.RoleIndex},
		readErr: store.NewError(store.ErrTransient, "idx", "read_by_keys", errors.New("blip")),
	}
	eng := newEngine(t, []store.Driver{vec, idx})

	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Subject)
	assert.Empty(t, results[0].Object)
}

func TestDiscoverFallsBackToNextVectorDriver(t *testing.T) {
	primary := &stubDriver{
		name:      "vec-a",
		roles:     []store.Role{store.RoleVector},
		searchErr: store.NewError(store.ErrUnavailable, "vec-a", "search", errors.New("refused")),
	}
	secondary := &stubDriver{name: "vec-b", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-a", "s1", 0.1, 0.8),
	}}
	idx := &stubDriver{name: "idx", roles: []store.Role{store.RoleIndex}}
	eng := newEngine(t, []store.Driver{primary, secondary, idx})

	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, primary.searchCalls)
	assert.Equal(t, 1, secondary.searchCalls)
}

func TestDiscoverSkipsTrippedVectorDriver(t *testing.T) {
	tripped := &stubDriver{name: "vec-a", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-stale", "s-stale", 0.05, 0.9),
	}}
	healthy := &stubDriver{name: "vec-b", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-a", "s1", 0.1, 0.8),
	}}
	reg := registry.New([]store.Driver{tripped, healthy})

	unavailable := store.NewError(store.ErrUnavailable, "vec-a", "search", errors.New("refused"))
	inst := reg.InstancesFor(store.RoleVector)[0]
	for range 3 {
		inst.Report(unavailable)
	}
	require.False(t, inst.Healthy())

	eng := New(reg, &staticEmbedder{})
	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-a", results[0].DocID)
	assert.Equal(t, 0, tripped.searchCalls)
	assert.Equal(t, 1, healthy.searchCalls)
}

func TestDiscoverRetrievalUnavailableWhenAllVectorDriversTripped(t *testing.T) {
	vec := &stubDriver{name: "vec-a", roles: []store.Role{store.RoleVector}}
	reg := registry.New([]store.Driver{vec})

	unavailable := store.NewError(store.ErrUnavailable, "vec-a", "search", errors.New("refused"))
	inst := reg.InstancesFor(store.RoleVector)[0]
	for range 3 {
		inst.Report(unavailable)
	}

	eng := New(reg, &staticEmbedder{})
	_, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
	assert.Equal(t, 0, vec.searchCalls)
}

func TestDiscoverRetrievalUnavailableWhenAllVectorDriversFail(t *testing.T) {
	failing := &stubDriver{
		name:      "vec-a",
		roles:     []store.Role{store.RoleVector},
		searchErr: store.NewError(store.ErrUnavailable, "vec-a", "search", errors.New("refused")),
	}
	eng := newEngine(t, []store.Driver{failing})

	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	assert.Nil(t, results)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
}

func TestDiscoverRetrievalUnavailableWithNoVectorRole(t *testing.T) {
	idx := &stubDriver{name: "idx", roles: []store.Role{store.RoleIndex}}
	eng := newEngine(t, []store.Driver{idx})

	_, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
}

func TestDiscoverDeduplicatesByTripleIdentity(t *testing.T) {
	// Same sentence embedded twice in two documents with identical context.
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-a", "shared sentence", 0.1, 0.8),
		hit("doc-b", "shared sentence", 0.3, 0.8),
	}}
	idx := &stubDriver{name: "idx", roles: []store.Role{store.RoleIndex}, triples: []*domain.SemanticTriple{
		triple("doc-a", "shared sentence", "curie", "radium"),
		triple("doc-b", "shared sentence", "curie", "radium"),
	}}
	eng := newEngine(t, []store.Driver{vec, idx})

	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.1, results[0].CosineDistance)
}

func TestDiscoverTruncatesToTopK(t *testing.T) {
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-a", "s1", 0.1, 0.8),
		hit("doc-b", "s2", 0.2, 0.8),
		hit("doc-c", "s3", 0.3, 0.8),
	}}
	idx := &stubDriver{name: "idx", roles: []store.Role{store.RoleIndex}}
	eng := newEngine(t, []store.Driver{vec, idx})

	results, err := eng.Discover(context.Background(), "q", "col-1", 2, "")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

type captureSink struct {
	recorded []*domain.DiscoveredKnowledge
	err      error
}

func (c *captureSink) Record(ctx context.Context, results []*domain.DiscoveredKnowledge) error {
	c.recorded = append(c.recorded, results...)
	return c.err
}

func TestDiscoverRecordsToAuditSink(t *testing.T) {
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-a", "s1", 0.1, 0.8),
	}}
	idx := &stubDriver{name: "idx", roles: []store.Role{store.RoleIndex}}
	sink := &captureSink{}
	eng := newEngine(t, []store.Driver{vec, idx}, WithAuditSink(sink))

	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "sess-9")
	require.NoError(t, err)
	require.Len(t, sink.recorded, 1)
	assert.Equal(t, results[0].ID, sink.recorded[0].ID)
	assert.Equal(t, "sess-9", sink.recorded[0].SessionID)
}

func TestDiscoverAuditFailureDoesNotFailQuery(t *testing.T) {
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}, hits: []store.VectorHit{
		hit("doc-a", "s1", 0.1, 0.8),
	}}
	sink := &captureSink{err: errors.New("bucket gone")}
	eng := newEngine(t, []store.Driver{vec}, WithAuditSink(sink))

	results, err := eng.Discover(context.Background(), "q", "col-1", 10, "")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDiscoverValidatesInput(t *testing.T) {
	vec := &stubDriver{name: "vec", roles: []store.Role{store.RoleVector}}
	eng := newEngine(t, []store.Driver{vec})

	_, err := eng.Discover(context.Background(), "", "col-1", 10, "")
	assert.ErrorIs(t, err, domain.ErrMissingQuery)

	_, err = eng.Discover(context.Background(), "q", "", 10, "")
	assert.ErrorIs(t, err, domain.ErrMissingCollectionID)
}
