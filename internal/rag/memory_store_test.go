package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kotonoha/internal/interfaces"
)

// stubEmbedder returns canned vectors keyed by input text
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return []float64{0, 0, 1}, nil
}

func TestMemoryStoreSaveAndSearch(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"扉を開けた":   {1, 0, 0},
		"少女と出会った": {0.9, 0.1, 0},
		"本を読んだ":   {0, 1, 0},
		"query":   {1, 0, 0},
	}}
	store := NewMemoryStore(embedder, 100, 0.1, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "扉を開けた", "turn-1"))
	require.NoError(t, store.Save(ctx, "少女と出会った", "turn-2"))
	require.NoError(t, store.Save(ctx, "本を読んだ", "turn-3"))
	assert.Equal(t, 3, store.Size())

	results := store.Search(ctx, "query", 5)
	require.Len(t, results, 2, "orthogonal memory filtered by threshold")
	assert.Equal(t, "扉を開けた", results[0].Text, "closest memory first")
	assert.Equal(t, "turn-1", results[0].TurnID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
	assert.Equal(t, "少女と出会った", results[1].Text)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestMemoryStoreSearchTopK(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"a": {1, 0, 0}, "b": {0.9, 0.1, 0}, "c": {0.8, 0.2, 0}, "query": {1, 0, 0},
	}}
	store := NewMemoryStore(embedder, 100, 0.1, nil)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, text, "turn-"+text))
	}

	results := store.Search(ctx, "query", 2)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Text)
	assert.Equal(t, "b", results[1].Text)
}

func TestMemoryStoreRecencyBreaksTies(t *testing.T) {
	store := NewMemoryStore(&stubEmbedder{vectors: map[string][]float64{
		"query": {1, 0, 0},
	}}, 100, 0.1, nil)

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	store.Import([]interfaces.MemoryVector{
		{ID: "1", TurnID: "old", Text: "古い記憶", Embedding: []float64{1, 0, 0}, Timestamp: older},
		{ID: "2", TurnID: "new", Text: "新しい記憶", Embedding: []float64{1, 0, 0}, Timestamp: newer},
	})

	results := store.Search(context.Background(), "query", 5)
	require.Len(t, results, 2)
	assert.Equal(t, "new", results[0].TurnID, "equal similarity ranks newer first")
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	store := NewMemoryStore(&stubEmbedder{}, 3, 0.1, nil)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, store.Save(ctx, "text "+id, "turn-"+id))
	}

	assert.Equal(t, 3, store.Size())
	exported := store.Export()
	require.Len(t, exported, 3)
	assert.Equal(t, "turn-2", exported[0].TurnID, "oldest entry evicted")
	assert.Equal(t, "turn-4", exported[2].TurnID)
}

func TestMemoryStoreFailSoft(t *testing.T) {
	t.Run("embed error on save", func(t *testing.T) {
		store := NewMemoryStore(&stubEmbedder{err: errors.New("rate limited")}, 100, 0.1, nil)
		assert.NoError(t, store.Save(context.Background(), "text", "turn-1"))
		assert.Zero(t, store.Size())
	})

	t.Run("embed error on search", func(t *testing.T) {
		store := NewMemoryStore(&stubEmbedder{err: errors.New("rate limited")}, 100, 0.1, nil)
		assert.Empty(t, store.Search(context.Background(), "query", 5))
	})

	t.Run("nil embedder", func(t *testing.T) {
		store := NewMemoryStore(nil, 100, 0.1, nil)
		assert.NoError(t, store.Save(context.Background(), "text", "turn-1"))
		assert.Zero(t, store.Size())
		assert.Empty(t, store.Search(context.Background(), "query", 5))
	})
}

func TestMemoryStoreExportImportRoundTrip(t *testing.T) {
	store := NewMemoryStore(&stubEmbedder{}, 100, 0.1, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "one", "turn-1"))
	require.NoError(t, store.Save(ctx, "two", "turn-2"))

	exported := store.Export()
	require.Len(t, exported, 2)

	restored := NewMemoryStore(&stubEmbedder{}, 100, 0.1, nil)
	restored.Import(exported)
	assert.Equal(t, exported, restored.Export())

	// Import over capacity keeps only the newest entries
	small := NewMemoryStore(&stubEmbedder{}, 1, 0.1, nil)
	small.Import(exported)
	require.Equal(t, 1, small.Size())
	assert.Equal(t, "turn-2", small.Export()[0].TurnID)
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore(&stubEmbedder{}, 100, 0.1, nil)
	require.NoError(t, store.Save(context.Background(), "text", "turn-1"))

	store.Clear()
	assert.Zero(t, store.Size())
	assert.Empty(t, store.Export())
}
