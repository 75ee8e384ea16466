package weaviate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalrag/internal/chunk"
	"journalrag/internal/testutils"
)

func TestStore_Integration(t *testing.T) {
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	store := NewStore(s.Weaviate, &staticEmbedder{vec: []float32{1, 0, 0}}, "JournalChunk", 2)

	records := []chunk.Record{
		chunk.ToRecord(chunk.Chunk{ID: "a1", SourceDocID: "doc1", ChunkIndex: 0, Text: "Photosynthesis converts light.", Attributes: chunk.Attributes{"Smith, J.", "biology"}}),
		chunk.ToRecord(chunk.Chunk{ID: "a2", SourceDocID: "doc1", ChunkIndex: 1, Text: "Chlorophyll absorbs light."}),
		chunk.ToRecord(chunk.Chunk{ID: "b1", SourceDocID: "doc2", ChunkIndex: 0, Text: "Mitochondria make ATP."}),
	}
	require.NoError(t, store.Upsert(ctx, records))

	// Re-upload replaces instead of duplicating.
	require.NoError(t, store.Upsert(ctx, records[:1]))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	count, err := store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	doc1, err := store.GetByDocumentID(ctx, "doc1")
	require.NoError(t, err)
	assert.Len(t, doc1, 2)

	got, err := store.QuerySimilar(ctx, "photosynthesis", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-4)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Empty(t, store.IncrementUsage(ctx, []string{"a1"}))
		}()
	}
	wg.Wait()

	failed := store.IncrementUsage(ctx, []string{"missing"})
	assert.Len(t, failed, 1)

	doc1, err = store.GetByDocumentID(ctx, "doc1")
	require.NoError(t, err)
	for _, c := range doc1 {
		if c.ID == "a1" {
			assert.Equal(t, 5, c.UsageCount)
			assert.Equal(t, chunk.Attributes{"Smith, J.", "biology"}, c.Attributes)
		}
	}
}
