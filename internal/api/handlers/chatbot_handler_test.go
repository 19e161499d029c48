package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlfolio/backend/internal/chatbot"
	"github.com/mlfolio/backend/internal/llm"
	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/internal/vector"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubStore struct {
	results []vector.SearchResult
}

func (s stubStore) Add(context.Context, []vector.Document) ([]string, error) { return nil, nil }
func (s stubStore) Search(context.Context, []float32, int) ([]vector.SearchResult, error) {
	return s.results, nil
}
func (s stubStore) Count(context.Context) (int, error) { return len(s.results), nil }
func (s stubStore) Reset(context.Context) error        { return nil }
func (s stubStore) Close() error                       { return nil }

type stubGenerator struct {
	answer string
}

func (s stubGenerator) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: s.answer}, nil
}

func (s stubGenerator) CompleteWithBlogSearch(context.Context, llm.CompletionRequest, llm.SearchFunc) (*llm.CompletionResponse, bool, error) {
	return &llm.CompletionResponse{Content: s.answer}, false, nil
}

type stubHistory struct {
	queries []models.QueryRecord
}

func (s *stubHistory) GetRecentQueries(int) ([]models.QueryRecord, error) {
	return s.queries, nil
}

func newChatApp(results []vector.SearchResult, answer string, history *stubHistory) *fiber.App {
	engine := chatbot.NewEngine(stubEmbedder{}, stubStore{results: results}, stubGenerator{answer: answer})
	h := NewChatbotHandler(engine, history)

	app := fiber.New()
	chat := app.Group("/api/chatbot")
	chat.Post("/", h.HandleQuery)
	chat.Get("/suggestions", h.HandleSuggestions)
	chat.Get("/health", h.HandleHealth)
	chat.Get("/history", h.HandleHistory)

	return app
}

func chatResults() []vector.SearchResult {
	return []vector.SearchResult{
		{
			ID:       "doc_0",
			Text:     "The portfolio runs on Kubernetes.",
			Metadata: map[string]string{"source": "docs/journey/week1.md", "category": "journey"},
			Distance: 0.1,
		},
	}
}

func TestHandleQueryAnswers(t *testing.T) {
	app := newChatApp(chatResults(), "On Kubernetes.", &stubHistory{})

	body, _ := json.Marshal(map[string]any{"question": "where does it run?"})
	req := httptest.NewRequest(fiber.MethodPost, "/api/chatbot/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var decoded chatbot.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "On Kubernetes.", decoded.Answer)
	assert.Equal(t, 1, decoded.ContextUsed)
	require.Len(t, decoded.Sources, 1)
	assert.Equal(t, "docs/journey/week1.md", decoded.Sources[0].Source)
}

func TestHandleQueryExcludesSourcesOnRequest(t *testing.T) {
	app := newChatApp(chatResults(), "answer", &stubHistory{})

	body, _ := json.Marshal(map[string]any{"question": "q", "include_sources": false})
	req := httptest.NewRequest(fiber.MethodPost, "/api/chatbot/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded chatbot.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Empty(t, decoded.Sources)
}

func TestHandleQueryRejectsEmptyQuestion(t *testing.T) {
	app := newChatApp(nil, "", &stubHistory{})

	body, _ := json.Marshal(map[string]any{"question": "   "})
	req := httptest.NewRequest(fiber.MethodPost, "/api/chatbot/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleSuggestions(t *testing.T) {
	app := newChatApp(nil, "", &stubHistory{})

	req := httptest.NewRequest(fiber.MethodGet, "/api/chatbot/suggestions", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var decoded struct {
		Questions []string `json:"questions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.NotEmpty(t, decoded.Questions)
}

func TestHandleHistory(t *testing.T) {
	history := &stubHistory{queries: []models.QueryRecord{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
	}}
	app := newChatApp(nil, "", history)

	req := httptest.NewRequest(fiber.MethodGet, "/api/chatbot/history", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var decoded struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, 2, decoded.Count)
}
