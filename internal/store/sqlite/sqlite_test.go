package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := New(context.Background(), "sqlite-test", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func testTriple(eventID string) *domain.SemanticTriple {
	return &domain.SemanticTriple{
		EventID:        eventID,
		Collection:     "col-1",
		Subject:        "Marie Curie",
		SubjectType:    "person",
		Predicate:      "discovered",
		PredicateType:  "action",
		Object:         "radium",
		ObjectType:     "element",
		Sentence:       "Marie Curie discovered radium in 1898.",
		DocumentID:     "doc-1",
		DocumentSource: "wiki",
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDriverRoles(t *testing.T) {
	d := newTestDriver(t)

	assert.Equal(t, "sqlite-test", d.Name())
	assert.Equal(t, "sqlite", d.Kind())
	assert.Equal(t, []store.Role{store.RoleIndex}, d.Roles())
}

func TestWriteTriple(t *testing.T) {
	d := newTestDriver(t)

	outcome, err := d.Write(context.Background(), testTriple("evt-1"))
	require.NoError(t, err)
	assert.False(t, outcome.Deduplicated)
	assert.Equal(t, "sqlite-test", outcome.Backend)
}

func TestWriteTriple_DuplicateSamePayload(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.Write(ctx, testTriple("evt-1"))
	require.NoError(t, err)

	outcome, err := d.Write(ctx, testTriple("evt-1"))
	require.NoError(t, err)
	assert.True(t, outcome.Deduplicated)
}

func TestWriteTriple_DuplicateDifferentPayload(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	_, err := d.Write(ctx, testTriple("evt-1"))
	require.NoError(t, err)

	conflicting := testTriple("evt-1")
	conflicting.Object = "polonium"
	_, err = d.Write(ctx, conflicting)
	require.Error(t, err)
	assert.Equal(t, store.ErrInconsistent, store.KindOf(err))
}

func TestWrite_UnsupportedRecord(t *testing.T) {
	d := newTestDriver(t)

	_, err := d.Write(context.Background(), &domain.EmbeddedKnowledge{EventID: "evt-1"})
	require.Error(t, err)
	assert.Equal(t, store.ErrUnsupported, store.KindOf(err))
}

func TestReadByKeys(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	first := testTriple("evt-1")
	second := testTriple("evt-2")
	second.Sentence = "Radium glows in the dark."
	second.Subject = "radium"
	second.Object = "dark"
	other := testTriple("evt-3")
	other.Collection = "col-2"

	for _, tr := range []*domain.SemanticTriple{first, second, other} {
		_, err := d.Write(ctx, tr)
		require.NoError(t, err)
	}

	triples, err := d.ReadByKeys(ctx, "col-1", []store.Key{
		{DocumentID: "doc-1", Sentence: first.Sentence},
		{DocumentID: "doc-1", Sentence: second.Sentence},
		{DocumentID: "doc-1", Sentence: "no such sentence"},
	})
	require.NoError(t, err)
	require.Len(t, triples, 2)

	got := map[string]bool{}
	for _, tr := range triples {
		got[tr.EventID] = true
		assert.Equal(t, "col-1", tr.Collection)
	}
	assert.True(t, got["evt-1"])
	assert.True(t, got["evt-2"])
}

func TestReadByKeys_EmptyKeys(t *testing.T) {
	d := newTestDriver(t)

	triples, err := d.ReadByKeys(context.Background(), "col-1", nil)
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestWriteDiscovery(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	disc := &domain.DiscoveredKnowledge{
		ID:             "res-1",
		Collection:     "col-1",
		SessionID:      "sess-1",
		Query:          "who discovered radium",
		DocID:          "doc-1",
		Sentence:       "Marie Curie discovered radium in 1898.",
		Subject:        "Marie Curie",
		Object:         "radium",
		CosineDistance: 0.12,
		Score:          0.88,
	}

	outcome, err := d.Write(ctx, disc)
	require.NoError(t, err)
	assert.False(t, outcome.Deduplicated)

	outcome, err = d.Write(ctx, disc)
	require.NoError(t, err)
	assert.True(t, outcome.Deduplicated)
}

func TestWriteInsightAndReadSession(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, q := range []string{"first question", "second question", "third question"} {
		ins := &domain.InsightKnowledge{
			ID:         fmt.Sprintf("ins-%d", i),
			Collection: "col-1",
			SessionID:  "sess-1",
			Query:      q,
			Response:   "answer",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		_, err := d.Write(ctx, ins)
		require.NoError(t, err)
	}

	insights, err := d.ReadSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, insights, 3)
	assert.Equal(t, "first question", insights[0].Query)
	assert.Equal(t, "second question", insights[1].Query)
	assert.Equal(t, "third question", insights[2].Query)
}

func TestReadSession_Empty(t *testing.T) {
	d := newTestDriver(t)

	insights, err := d.ReadSession(context.Background(), "sess-none")
	require.NoError(t, err)
	assert.Empty(t, insights)
}

func TestSearchSimilar_Unsupported(t *testing.T) {
	d := newTestDriver(t)

	_, err := d.SearchSimilar(context.Background(), make([]float32, domain.EmbeddingDim), 10, "col-1")
	require.Error(t, err)
	assert.Equal(t, store.ErrUnsupported, store.KindOf(err))
}
