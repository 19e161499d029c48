package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/chatbot"
	"github.com/mlfolio/backend/internal/metrics"
	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/pkg/logger"
)

// QueryHistoryReader exposes recently answered questions.
type QueryHistoryReader interface {
	GetRecentQueries(limit int) ([]models.QueryRecord, error)
}

// ChatbotHandler serves the public chat endpoints. Query responses are
// always 200: the engine degrades internally instead of erroring.
type ChatbotHandler struct {
	engine  *chatbot.Engine
	history QueryHistoryReader
}

func NewChatbotHandler(engine *chatbot.Engine, history QueryHistoryReader) *ChatbotHandler {
	return &ChatbotHandler{engine: engine, history: history}
}

type queryRequest struct {
	Question       string `json:"question"`
	K              int    `json:"k"`
	IncludeSources *bool  `json:"include_sources"`
}

func (h *ChatbotHandler) HandleQuery(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	includeSources := true
	if req.IncludeSources != nil {
		includeSources = *req.IncludeSources
	}

	start := time.Now()
	resp := h.engine.Query(c.Context(), question, req.K, includeSources)

	status := "answered"
	if resp.ContextUsed == 0 {
		status = "no_context"
	}
	metrics.ChatQueriesTotal.WithLabelValues(status).Inc()
	metrics.ChatQueryDuration.Observe(time.Since(start).Seconds())
	metrics.ContextChunksUsed.Observe(float64(resp.ContextUsed))

	logger.Info("Chat query answered",
		zap.Int("context_used", resp.ContextUsed),
		zap.Bool("blog_search_used", resp.BlogSearchUsed),
		zap.Duration("latency", time.Since(start)),
	)

	return c.JSON(resp)
}

func (h *ChatbotHandler) HandleSuggestions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"questions": h.engine.SuggestedQuestions(),
	})
}

func (h *ChatbotHandler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(h.engine.Health(c.Context()))
}

func (h *ChatbotHandler) HandleHistory(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}

	records, err := h.history.GetRecentQueries(limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	return c.JSON(fiber.Map{
		"queries": records,
		"count":   len(records),
	})
}
