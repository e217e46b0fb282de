//go:build integration

package index_test

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genius-labs/insight/internal/index"
	"github.com/genius-labs/insight/internal/log"
	"github.com/genius-labs/insight/internal/testutil"
)

func setupIntegrationStore(t *testing.T) (*index.Store, *testutil.MockEmbedder, func()) {
	t.Helper()

	dbc, cleanup := testutil.SetupTestDB(t)
	g := genkit.Init(context.Background())
	mockEmb := testutil.NewMockEmbedder(index.VectorDimension)
	embedder := mockEmb.RegisterEmbedder(g)

	store := index.New(index.NewQueries(dbc.Pool), embedder, log.NewNop())
	return store, mockEmb, cleanup
}

func TestStore_AddAndSearch_Integration(t *testing.T) {
	ctx := context.Background()
	store, emb, cleanup := setupIntegrationStore(t)
	defer cleanup()

	// Give the query the same vector as one chunk so it ranks first.
	vec := make([]float32, index.VectorDimension)
	vec[0] = 1
	far := make([]float32, index.VectorDimension)
	far[1] = 1
	emb.SetVector("prepaid churn rose in Q3", vec)
	emb.SetVector("why is churn rising", vec)
	emb.SetVector("ice cream flavor preferences", far)

	docs := []index.Document{
		{
			ID:          "tigo/study-1/0",
			IndexHandle: "tigo-insights",
			Content:     "prepaid churn rose in Q3",
			Metadata:    map[string]string{index.MetaStudyType: "tracking", index.MetaYear: "2024"},
		},
		{
			ID:          "unilever/study-9/0",
			IndexHandle: "unilever-documents",
			Content:     "ice cream flavor preferences",
			Metadata:    map[string]string{index.MetaStudyType: "usage_attitudes"},
		},
	}
	for _, doc := range docs {
		require.NoError(t, store.Add(ctx, doc))
	}

	hits, err := store.Search(ctx, "tigo-insights", "why is churn rising", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1, "search must not cross index handles")
	assert.Equal(t, "tigo/study-1/0", hits[0].DocumentID)
	assert.InDelta(t, 1.0, hits[0].Score, 0.01)
	assert.Equal(t, "tracking", hits[0].Metadata[index.MetaStudyType])
}

func TestStore_Stats_Integration(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := setupIntegrationStore(t)
	defer cleanup()

	docs := []index.Document{
		{ID: "a", IndexHandle: "tigo-insights", Content: "one",
			Metadata: map[string]string{index.MetaStudyType: "tracking", index.MetaYear: "2024", index.MetaBrand: "Tigo"}},
		{ID: "b", IndexHandle: "tigo-insights", Content: "two",
			Metadata: map[string]string{index.MetaStudyType: "tracking", index.MetaYear: "2023"}},
		{ID: "c", IndexHandle: "tigo-insights", Content: "three",
			Metadata: map[string]string{index.MetaStudyType: "segmentation"}},
		{ID: "d", IndexHandle: "unilever-documents", Content: "four",
			Metadata: map[string]string{index.MetaStudyType: "tracking"}},
	}
	for _, doc := range docs {
		require.NoError(t, store.Add(ctx, doc))
	}

	stats, err := store.Stats(ctx, "tigo-insights")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, map[string]int{"tracking": 2, "segmentation": 1}, stats.StudyTypes)
	assert.Equal(t, map[string]int{"2024": 1, "2023": 1}, stats.Years)
	assert.Equal(t, map[string]int{"Tigo": 1}, stats.Brands)
}

func TestStore_UpsertReplaces_Integration(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := setupIntegrationStore(t)
	defer cleanup()

	doc := index.Document{ID: "a", IndexHandle: "tigo-insights", Content: "first version"}
	require.NoError(t, store.Add(ctx, doc))

	doc.Content = "second version"
	require.NoError(t, store.Add(ctx, doc))

	stats, err := store.Stats(ctx, "tigo-insights")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)

	hits, err := store.Search(ctx, "tigo-insights", "second version", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "second version", hits[0].Content)
}
