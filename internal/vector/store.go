package vector

import (
	"context"
	"math"
)

// Document is a chunk of text plus its embedding, ready for indexing. IDs are
// assigned by the store.
type Document struct {
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// SearchResult is one nearest neighbour of a query embedding. Distance is
// cosine distance, 0 for identical direction and 2 for opposite.
type SearchResult struct {
	ID       string
	Text     string
	Metadata map[string]string
	Distance float32
}

// Store indexes embedded document chunks and answers nearest-neighbour
// queries. Searching an empty store returns an empty result set, not an
// error. Reset drops every record and is safe to call repeatedly.
type Store interface {
	Add(ctx context.Context, docs []Document) ([]string, error)
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// CosineDistance returns 1 - cos(a, b). Zero-norm vectors are treated as
// maximally distant from everything.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}

	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}
