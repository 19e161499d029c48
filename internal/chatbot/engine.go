// Package chatbot answers questions about the portfolio with retrieval
// augmented generation: embed the question, pull the closest document
// chunks, and generate a grounded answer.
package chatbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/llm"
	"github.com/mlfolio/backend/internal/metrics"
	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/pkg/logger"
	"github.com/mlfolio/backend/pkg/utils"
)

// insufficientInfoAnswer is returned verbatim when retrieval finds nothing;
// the generator is never called in that case.
const insufficientInfoAnswer = "I don't have enough information to answer that question. " +
	"Try asking about the learning journey, tech stack, or projects."

// degradedAnswer is returned when any internal step fails. Chat must never
// surface an error page to a portfolio visitor.
const degradedAnswer = "Sorry, I ran into a problem answering that. Please try again in a moment."

const promptTemplate = `You are an AI assistant helping visitors learn about the portfolio
owner's journey to becoming an AI/ML platform engineer. You have access to documentation
about their projects, learning sprints and technical decisions.

Your role:
- Answer questions based ONLY on the provided context below
- Be specific and cite relevant details from the journey
- If asked about technical implementations, provide concrete examples
- If the context doesn't contain the answer, say so honestly
- Keep answers concise but informative (2-4 paragraphs max)
- Use a friendly, professional tone
- Include relevant technologies and achievements when appropriate

DO NOT:
- Make up information not in the context
- Claim experience that is not in the context
- Provide generic answers that could apply to anyone

---

Context from the portfolio documentation:

%s

---

Question: %s

Please provide a helpful answer based on the context above.`

const defaultTopK = 5

// Embedder produces the query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces answers from prompts.
type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	CompleteWithBlogSearch(ctx context.Context, req llm.CompletionRequest, search llm.SearchFunc) (*llm.CompletionResponse, bool, error)
}

// PaperSearcher backs the blog-search tool with keyword search over stored
// papers.
type PaperSearcher interface {
	SearchPapers(keyword string, limit int) ([]models.Paper, error)
}

// Cache holds previously computed answers and embeddings. Both sides are
// best-effort: cache errors never fail a query.
type Cache interface {
	GetAnswer(ctx context.Context, questionHash string, response any) (bool, error)
	SetAnswer(ctx context.Context, questionHash string, response any, ttl time.Duration) error
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// HistorySink records answered questions.
type HistorySink interface {
	InsertQueryRecord(record *models.QueryRecord) error
}

// Source describes one context chunk used for an answer.
type Source struct {
	Source         string  `json:"source"`
	Category       string  `json:"category"`
	ChunkID        string  `json:"chunk_id"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Response is the chat answer payload.
type Response struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources,omitempty"`
	ContextUsed    int      `json:"context_used"`
	BlogSearchUsed bool     `json:"blog_search_used,omitempty"`
}

// Engine wires the query pipeline together. Construct it once in main and
// share it; all collaborators are injected.
type Engine struct {
	embedder  Embedder
	store     vector.Store
	generator Generator
	papers    PaperSearcher
	cache     Cache
	history   HistorySink
	cacheTTL  time.Duration
}

// Option configures optional engine collaborators.
type Option func(*Engine)

func WithPaperSearch(papers PaperSearcher) Option {
	return func(e *Engine) { e.papers = papers }
}

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		e.cacheTTL = ttl
	}
}

func WithHistory(history HistorySink) Option {
	return func(e *Engine) { e.history = history }
}

func NewEngine(embedder Embedder, store vector.Store, generator Generator, opts ...Option) *Engine {
	e := &Engine{
		embedder:  embedder,
		store:     store,
		generator: generator,
		cacheTTL:  24 * time.Hour,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query answers question using the top k retrieved chunks. It never returns
// an error: failures degrade to an apologetic answer.
func (e *Engine) Query(ctx context.Context, question string, k int, includeSources bool) Response {
	start := time.Now()
	if k <= 0 {
		k = defaultTopK
	}

	cacheKey := utils.HashString(fmt.Sprintf("%s|%d|%t", question, k, includeSources))
	if e.cache != nil {
		var cached Response
		if hit, err := e.cache.GetAnswer(ctx, cacheKey, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			return cached
		}
		metrics.CacheMisses.WithLabelValues("answer").Inc()
	}

	resp, ok := e.answer(ctx, question, k, includeSources)
	if !ok {
		return Response{Answer: degradedAnswer}
	}

	e.record(question, resp, time.Since(start))

	if e.cache != nil && resp.ContextUsed > 0 {
		if err := e.cache.SetAnswer(ctx, cacheKey, resp, e.cacheTTL); err != nil {
			logger.Warn("Failed to cache answer", zap.Error(err))
		}
	}

	return resp
}

func (e *Engine) answer(ctx context.Context, question string, k int, includeSources bool) (Response, bool) {
	embedding, err := e.embedQuestion(ctx, question)
	if err != nil {
		logger.Error("Query embedding failed", zap.Error(err))
		return Response{}, false
	}

	results, err := e.store.Search(ctx, embedding, k)
	if err != nil {
		logger.Error("Vector search failed", zap.Error(err))
		return Response{}, false
	}

	if len(results) == 0 {
		return Response{Answer: insufficientInfoAnswer, ContextUsed: 0}, true
	}

	prompt := fmt.Sprintf(promptTemplate, buildContext(results), question)

	resp := Response{ContextUsed: len(results)}
	if includeSources {
		resp.Sources = formatSources(results)
	}

	if e.papers != nil {
		var matched []models.Paper
		completion, toolUsed, err := e.generator.CompleteWithBlogSearch(ctx, llm.CompletionRequest{Prompt: prompt},
			func(ctx context.Context, query string) (string, error) {
				papers, err := e.papers.SearchPapers(query, 3)
				if err != nil {
					return "", err
				}
				matched = papers
				return formatPaperResults(papers), nil
			})
		if err != nil {
			logger.Error("Answer generation failed", zap.Error(err))
			return Response{}, false
		}

		resp.Answer = completion.Content
		resp.BlogSearchUsed = toolUsed
		if includeSources {
			for _, p := range matched {
				resp.Sources = append(resp.Sources, Source{
					Source:         "blog-" + p.ID,
					Category:       p.Category,
					RelevanceScore: p.RelevanceScore,
				})
			}
		}
		return resp, true
	}

	completion, err := e.generator.Complete(ctx, llm.CompletionRequest{Prompt: prompt})
	if err != nil {
		logger.Error("Answer generation failed", zap.Error(err))
		return Response{}, false
	}
	resp.Answer = completion.Content

	return resp, true
}

func (e *Engine) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	textHash := utils.HashString(question)

	if e.cache != nil {
		if embedding, hit, err := e.cache.GetEmbedding(ctx, textHash); err == nil && hit {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetEmbedding(ctx, textHash, embedding, e.cacheTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}
	return embedding, nil
}

func (e *Engine) record(question string, resp Response, latency time.Duration) {
	if e.history == nil {
		return
	}

	err := e.history.InsertQueryRecord(&models.QueryRecord{
		Question:    question,
		Answer:      resp.Answer,
		ContextUsed: resp.ContextUsed,
		LatencyMS:   int(latency.Milliseconds()),
	})
	if err != nil {
		logger.Warn("Failed to record query", zap.Error(err))
	}
}

func buildContext(results []vector.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		source := r.Metadata["source"]
		if source == "" {
			source = "Unknown"
		}
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", source, r.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func formatSources(results []vector.SearchResult) []Source {
	sources := make([]Source, len(results))
	for i, r := range results {
		source := r.Metadata["source"]
		if source == "" {
			source = "Unknown"
		}
		category := r.Metadata["category"]
		if category == "" {
			category = "general"
		}
		sources[i] = Source{
			Source:         source,
			Category:       category,
			ChunkID:        r.Metadata["chunk_id"],
			RelevanceScore: float64(1 - r.Distance),
		}
	}
	return sources
}

func formatPaperResults(papers []models.Paper) string {
	if len(papers) == 0 {
		return "No matching blog posts found."
	}

	var sb strings.Builder
	for i, p := range papers {
		fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n\n", i+1, p.Title, p.Category, p.Abstract)
	}
	return strings.TrimSpace(sb.String())
}

// SuggestedQuestions are starter prompts surfaced in the chat UI.
func (e *Engine) SuggestedQuestions() []string {
	return []string{
		"How was Kubernetes used in this portfolio?",
		"What cloud experience does the portfolio show?",
		"Tell me about the RAG system implementation",
		"What technologies were mastered during the learning sprint?",
		"Show me proof of deployments",
		"What challenges came up during the learning sprint?",
		"How was Infrastructure as Code implemented?",
		"What's the architecture of this portfolio?",
	}
}

// Health reports whether the engine can answer questions.
type Health struct {
	Status    string `json:"status"`
	Documents int    `json:"vector_store_documents"`
	Ready     bool   `json:"ready"`
}

func (e *Engine) Health(ctx context.Context) Health {
	count, err := e.store.Count(ctx)
	if err != nil {
		logger.Error("Vector store health check failed", zap.Error(err))
		return Health{Status: "degraded", Ready: false}
	}
	return Health{Status: "healthy", Documents: count, Ready: count > 0}
}
