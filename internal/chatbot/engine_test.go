package chatbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlfolio/backend/internal/llm"
	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/internal/vector"
)

type fakeEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.embedding, f.err
}

type fakeStore struct {
	results []vector.SearchResult
	err     error
	count   int
}

func (f *fakeStore) Add(context.Context, []vector.Document) ([]string, error) { return nil, nil }
func (f *fakeStore) Search(context.Context, []float32, int) ([]vector.SearchResult, error) {
	return f.results, f.err
}
func (f *fakeStore) Count(context.Context) (int, error) { return f.count, nil }
func (f *fakeStore) Reset(context.Context) error        { return nil }
func (f *fakeStore) Close() error                       { return nil }

type fakeGenerator struct {
	answer     string
	err        error
	calls      int
	lastPrompt string
	useTool    bool
}

func (f *fakeGenerator) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.lastPrompt = req.Prompt
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.answer}, nil
}

func (f *fakeGenerator) CompleteWithBlogSearch(ctx context.Context, req llm.CompletionRequest, search llm.SearchFunc) (*llm.CompletionResponse, bool, error) {
	f.calls++
	f.lastPrompt = req.Prompt
	if f.err != nil {
		return nil, false, f.err
	}
	if f.useTool {
		if _, err := search(ctx, "rag"); err != nil {
			return nil, false, err
		}
		return &llm.CompletionResponse{Content: f.answer}, true, nil
	}
	return &llm.CompletionResponse{Content: f.answer}, false, nil
}

type fakePapers struct {
	papers []models.Paper
}

func (f *fakePapers) SearchPapers(string, int) ([]models.Paper, error) {
	return f.papers, nil
}

type fakeHistory struct {
	records []*models.QueryRecord
}

func (f *fakeHistory) InsertQueryRecord(r *models.QueryRecord) error {
	f.records = append(f.records, r)
	return nil
}

func someResults() []vector.SearchResult {
	return []vector.SearchResult{
		{
			ID:       "doc_0",
			Text:     "Deployed the portfolio on Kubernetes with Terraform.",
			Metadata: map[string]string{"source": "docs/journey/week2.md", "category": "journey", "chunk_id": "0"},
			Distance: 0.2,
		},
		{
			ID:       "doc_1",
			Text:     "The RAG system embeds markdown docs.",
			Metadata: map[string]string{"source": "docs/technical/rag.md", "category": "technical", "chunk_id": "3"},
			Distance: 0.4,
		},
	}
}

func TestQueryEmptyStoreSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	e := NewEngine(&fakeEmbedder{embedding: []float32{1}}, &fakeStore{}, gen)

	resp := e.Query(context.Background(), "what is this?", 5, true)

	assert.Equal(t, insufficientInfoAnswer, resp.Answer)
	assert.Zero(t, resp.ContextUsed)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, gen.calls, "generator must not run without context")
}

func TestQueryBuildsLabeledContext(t *testing.T) {
	gen := &fakeGenerator{answer: "It runs on Kubernetes."}
	e := NewEngine(&fakeEmbedder{embedding: []float32{1}}, &fakeStore{results: someResults()}, gen)

	resp := e.Query(context.Background(), "how is it deployed?", 5, true)

	assert.Equal(t, "It runs on Kubernetes.", resp.Answer)
	assert.Equal(t, 2, resp.ContextUsed)

	// Context carries [Source: x] labels, separated by the block divider.
	assert.Contains(t, gen.lastPrompt, "[Source: docs/journey/week2.md]")
	assert.Contains(t, gen.lastPrompt, "[Source: docs/technical/rag.md]")
	assert.Contains(t, gen.lastPrompt, "\n\n---\n\n")
	assert.Contains(t, gen.lastPrompt, "how is it deployed?")

	// relevance_score = 1 - distance.
	require.Len(t, resp.Sources, 2)
	assert.InDelta(t, 0.8, resp.Sources[0].RelevanceScore, 1e-6)
	assert.InDelta(t, 0.6, resp.Sources[1].RelevanceScore, 1e-6)
	assert.Equal(t, "journey", resp.Sources[0].Category)
}

func TestQueryWithoutSources(t *testing.T) {
	gen := &fakeGenerator{answer: "answer"}
	e := NewEngine(&fakeEmbedder{embedding: []float32{1}}, &fakeStore{results: someResults()}, gen)

	resp := e.Query(context.Background(), "q", 5, false)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 2, resp.ContextUsed)
}

func TestQueryDegradesOnErrors(t *testing.T) {
	t.Run("embed failure", func(t *testing.T) {
		e := NewEngine(&fakeEmbedder{err: errors.New("no api")}, &fakeStore{}, &fakeGenerator{})
		resp := e.Query(context.Background(), "q", 5, true)
		assert.Equal(t, degradedAnswer, resp.Answer)
	})

	t.Run("search failure", func(t *testing.T) {
		e := NewEngine(&fakeEmbedder{embedding: []float32{1}}, &fakeStore{err: errors.New("db gone")}, &fakeGenerator{})
		resp := e.Query(context.Background(), "q", 5, true)
		assert.Equal(t, degradedAnswer, resp.Answer)
	})

	t.Run("generation failure", func(t *testing.T) {
		e := NewEngine(&fakeEmbedder{embedding: []float32{1}}, &fakeStore{results: someResults()}, &fakeGenerator{err: errors.New("llm down")})
		resp := e.Query(context.Background(), "q", 5, true)
		assert.Equal(t, degradedAnswer, resp.Answer)
	})
}

func TestQueryFoldsBlogSearchResults(t *testing.T) {
	papers := &fakePapers{papers: []models.Paper{
		{ID: "p1", Title: "RAG in production", Category: "rag", RelevanceScore: 0.9},
	}}
	gen := &fakeGenerator{answer: "with blog context", useTool: true}

	e := NewEngine(&fakeEmbedder{embedding: []float32{1}}, &fakeStore{results: someResults()}, gen,
		WithPaperSearch(papers))

	resp := e.Query(context.Background(), "any blog posts on RAG?", 5, true)

	assert.True(t, resp.BlogSearchUsed)
	require.Len(t, resp.Sources, 3)
	assert.Equal(t, "blog-p1", resp.Sources[2].Source)
	assert.InDelta(t, 0.9, resp.Sources[2].RelevanceScore, 1e-6)
}

func TestQueryRecordsHistory(t *testing.T) {
	history := &fakeHistory{}
	e := NewEngine(&fakeEmbedder{embedding: []float32{1}}, &fakeStore{results: someResults()},
		&fakeGenerator{answer: "recorded"}, WithHistory(history))

	e.Query(context.Background(), "remember this", 5, false)

	require.Len(t, history.records, 1)
	assert.Equal(t, "remember this", history.records[0].Question)
	assert.Equal(t, "recorded", history.records[0].Answer)
	assert.Equal(t, 2, history.records[0].ContextUsed)
}

func TestHealthReflectsStoreCount(t *testing.T) {
	e := NewEngine(&fakeEmbedder{embedding: []float32{1}}, &fakeStore{count: 42}, &fakeGenerator{})
	h := e.Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 42, h.Documents)
	assert.True(t, h.Ready)

	empty := NewEngine(&fakeEmbedder{}, &fakeStore{count: 0}, &fakeGenerator{})
	assert.False(t, empty.Health(context.Background()).Ready)
}

func TestSuggestedQuestionsNonEmpty(t *testing.T) {
	e := NewEngine(&fakeEmbedder{}, &fakeStore{}, &fakeGenerator{})
	qs := e.SuggestedQuestions()
	assert.NotEmpty(t, qs)
	for _, q := range qs {
		assert.False(t, strings.TrimSpace(q) == "")
	}
}
