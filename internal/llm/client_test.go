package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlfolio/backend/pkg/errs"
)

// fakeEmbeddingServer answers the OpenAI embeddings API with a deterministic
// vector per input: [len(text), position-in-batch].
func fakeEmbeddingServer(t *testing.T, batchSizes *[]int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*batchSizes = append(*batchSizes, len(req.Input))

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i, text := range req.Input {
			data[i] = item{
				Object:    "embedding",
				Index:     i,
				Embedding: []float32{float32(len(text)), float32(i)},
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embedding",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestEmbedBatchPreservesOrderAcrossBatches(t *testing.T) {
	var batchSizes []int
	srv := fakeEmbeddingServer(t, &batchSizes)
	defer srv.Close()

	client := NewClient(Options{
		APIKey:         "test",
		BaseURL:        srv.URL,
		EmbeddingModel: "test-embedding",
		EmbeddingBatch: 2,
	})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	// Vector i must correspond to text i: first component is len(texts[i]).
	for i, v := range vectors {
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}

	// 5 texts at batch size 2 -> batches of 2, 2, 1.
	assert.Equal(t, []int{2, 2, 1}, batchSizes)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	client := NewClient(Options{APIKey: "test", EmbeddingModel: "test-embedding"})

	vectors, err := client.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedBatchWrapsProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(Options{
		APIKey:         "test",
		BaseURL:        srv.URL,
		EmbeddingModel: "test-embedding",
	})
	client.retryConfig.MaxAttempts = 1

	_, err := client.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, errs.ErrExternalService)
}

func TestCompleteReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`)
	}))
	defer srv.Close()

	client := NewClient(Options{
		APIKey:  "test",
		BaseURL: srv.URL,
		Model:   "test-model",
	})

	resp, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestCompleteWithBlogSearchRunsTool(t *testing.T) {
	var calls int
	var firstToolName string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		calls++

		w.Header().Set("Content-Type", "application/json")

		if calls == 1 {
			var req struct {
				Tools []struct {
					Function struct {
						Name string `json:"name"`
					} `json:"function"`
				} `json:"tools"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Tools, 1)
			firstToolName = req.Tools[0].Function.Name

			fmt.Fprint(w, `{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "search_blog_posts", "arguments": "{\"query\":\"rag\"}"}}]},
					"finish_reason": "tool_calls"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
			}`)
			return
		}

		fmt.Fprint(w, `{
			"id": "chatcmpl-2",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "found it"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 3, "total_tokens": 23}
		}`)
	}))
	defer srv.Close()

	client := NewClient(Options{
		APIKey:  "test",
		BaseURL: srv.URL,
		Model:   "test-model",
	})

	var searchedFor string
	resp, toolUsed, err := client.CompleteWithBlogSearch(context.Background(),
		CompletionRequest{Prompt: "what blog posts cover rag?"},
		func(ctx context.Context, query string) (string, error) {
			searchedFor = query
			return "RAG Deep Dive (2024)", nil
		})

	require.NoError(t, err)
	assert.True(t, toolUsed)
	assert.Equal(t, "found it", resp.Content)
	assert.Equal(t, "search_blog_posts", firstToolName)
	assert.Equal(t, "rag", searchedFor)
	assert.Equal(t, 2, calls)
}
