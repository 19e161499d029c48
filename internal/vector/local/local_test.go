package local

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlfolio/backend/internal/vector"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAssignsSequentialIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.Add(ctx, []vector.Document{
		{Text: "first", Embedding: []float32{1, 0}},
		{Text: "second", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_0", "doc_1"}, ids)

	ids, err = s.Add(ctx, []vector.Document{
		{Text: "third", Embedding: []float32{1, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_2"}, ids)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSearchReturnsNearestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, []vector.Document{
		{Text: "east", Embedding: []float32{1, 0}, Metadata: map[string]string{"category": "llm"}},
		{Text: "north", Embedding: []float32{0, 1}},
		{Text: "northeast", Embedding: []float32{1, 1}},
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The exact vector comes back first with distance ~0.
	assert.Equal(t, "east", results[0].Text)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, "llm", results[0].Metadata["category"])
	assert.Equal(t, "northeast", results[1].Text)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestSearchEmptyStore(t *testing.T) {
	s := openTestStore(t)

	results, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTopKCapsResults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docs := make([]vector.Document, 10)
	for i := range docs {
		docs[i] = vector.Document{
			Text:      fmt.Sprintf("doc %d", i),
			Embedding: []float32{float32(i), 1},
		}
	}
	_, err := s.Add(ctx, docs)
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestResetIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, []vector.Document{{Text: "a", Embedding: []float32{1}}})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.Reset(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// IDs restart after reset.
	ids, err := s.Add(ctx, []vector.Document{{Text: "b", Embedding: []float32{1}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc_0"}, ids)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Add(ctx, []vector.Document{{Text: "persisted", Embedding: []float32{1, 2}}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := s.Search(ctx, []float32{1, 2}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Text)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, vector.CosineDistance([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 1, vector.CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2, vector.CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.InDelta(t, 1, vector.CosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-6)
}
