package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/metrics"
	"github.com/mlfolio/backend/pkg/circuitbreaker"
	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
	"github.com/mlfolio/backend/pkg/retry"
)

type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	EmbeddingBatch int
	Temperature    float32
	TopP           float32
	MaxTokens      int
}

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	embeddingBatch int
	temperature    float32
	topP           float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	Prompt      string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	if opts.EmbeddingBatch <= 0 {
		opts.EmbeddingBatch = 100
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", opts.Model),
		zap.String("embedding_model", opts.EmbeddingModel),
		zap.Int("embedding_batch", opts.EmbeddingBatch),
	)

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		embeddingBatch: opts.EmbeddingBatch,
		temperature:    opts.Temperature,
		topP:           opts.TopP,
		maxTokens:      opts.MaxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// Embed generates the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts in provider-sized batches.
// Output vector i corresponds to input text i.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += c.embeddingBatch {
		end := i + c.embeddingBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()

				resp, err := c.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(c.embeddingModel),
				})
				if err != nil {
					return fmt.Errorf("%w: create embeddings: %v", errs.ErrExternalService, err)
				}
				if len(resp.Data) != len(batch) {
					return fmt.Errorf("%w: embedding count mismatch: got %d, expected %d",
						errs.ErrExternalService, len(resp.Data), len(batch))
				}

				for _, data := range resp.Data {
					vector := make([]float32, len(data.Embedding))
					copy(vector, data.Embedding)
					embeddings = append(embeddings, vector)
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

// Complete runs a single-turn completion with the configured sampling
// parameters. Zero request fields fall back to the client defaults.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	topP := req.TopP
	if topP == 0 {
		topP = c.topP
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: temperature,
				TopP:        topP,
				MaxTokens:   maxTokens,
			})
			if err != nil {
				return fmt.Errorf("%w: create completion: %v", errs.ErrExternalService, err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("%w: completion returned no choices", errs.ErrExternalService)
			}

			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)
			c.countTokens(resp.Usage)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SearchFunc resolves a blog-search tool call into formatted result text.
type SearchFunc func(ctx context.Context, query string) (string, error)

var blogSearchTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: openai.FunctionDefinition{
		Name:        "search_blog_posts",
		Description: "Search stored blog posts and research papers by keyword. Use when the supplied context does not cover the question.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Keywords to search for"
				}
			},
			"required": ["query"]
		}`),
	},
}

// CompleteWithBlogSearch runs a completion that may call the search_blog_posts
// tool. When the model requests it, search is invoked and its results are
// folded into a follow-up turn. The returned bool reports whether the tool ran.
func (c *Client) CompleteWithBlogSearch(ctx context.Context, req CompletionRequest, search SearchFunc) (*CompletionResponse, bool, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	topP := req.TopP
	if topP == 0 {
		topP = c.topP
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
	}

	first, err := c.chat(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Tools:       []openai.Tool{blogSearchTool},
	})
	if err != nil {
		return nil, false, err
	}

	choice := first.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return &CompletionResponse{
			Content: choice.Message.Content,
			Usage:   usageFrom(first.Usage),
		}, false, nil
	}

	messages = append(messages, choice.Message)

	for _, call := range choice.Message.ToolCalls {
		if call.Function.Name != blogSearchTool.Function.Name {
			continue
		}

		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logger.Warn("Malformed tool arguments", zap.Error(err))
			continue
		}

		logger.Info("Blog search tool requested", zap.String("query", args.Query))

		results, err := search(ctx, args.Query)
		if err != nil {
			logger.Warn("Blog search failed", zap.Error(err))
			results = "No results found."
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: call.ID,
			Content:    results,
		})
	}

	second, err := c.chat(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, true, err
	}

	return &CompletionResponse{
		Content: second.Choices[0].Message.Content,
		Usage:   usageFrom(second.Usage),
	}, true, nil
}

func (c *Client) chat(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	var result *openai.ChatCompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			resp, err := c.client.CreateChatCompletion(reqCtx, req)
			if err != nil {
				return fmt.Errorf("%w: create completion: %v", errs.ErrExternalService, err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("%w: completion returned no choices", errs.ErrExternalService)
			}
			c.countTokens(resp.Usage)
			result = &resp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) countTokens(u openai.Usage) {
	metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(u.CompletionTokens))
}

func usageFrom(u openai.Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
