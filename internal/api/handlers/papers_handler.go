package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/pkg/logger"
)

// PaperReader exposes stored papers for the public listing endpoints.
type PaperReader interface {
	ListPapers(category string, limit, offset int) ([]models.Paper, error)
	SearchPapers(keyword string, limit int) ([]models.Paper, error)
	CountPapers() (int, error)
}

// PapersHandler serves read-only access to scraped papers and blog posts.
type PapersHandler struct {
	db PaperReader
}

func NewPapersHandler(db PaperReader) *PapersHandler {
	return &PapersHandler{db: db}
}

// HandleList returns papers newest first, optionally filtered by category
// or matched against a keyword.
func (h *PapersHandler) HandleList(c *fiber.Ctx) error {
	limit := clampQueryInt(c, "limit", 20, 1, 100)
	offset := clampQueryInt(c, "offset", 0, 0, 1<<20)

	var (
		papers []models.Paper
		err    error
	)
	if keyword := c.Query("q"); keyword != "" {
		papers, err = h.db.SearchPapers(keyword, limit)
	} else {
		papers, err = h.db.ListPapers(c.Query("category"), limit, offset)
	}
	if err != nil {
		logger.Error("Failed to list papers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list papers",
		})
	}

	return c.JSON(fiber.Map{
		"papers": papers,
		"count":  len(papers),
	})
}

func (h *PapersHandler) HandleStats(c *fiber.Ctx) error {
	total, err := h.db.CountPapers()
	if err != nil {
		logger.Error("Failed to count papers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count papers",
		})
	}

	return c.JSON(fiber.Map{
		"total_papers": total,
	})
}

func clampQueryInt(c *fiber.Ctx, key string, def, min, max int) int {
	v, err := strconv.Atoi(c.Query(key, strconv.Itoa(def)))
	if err != nil || v < min || v > max {
		return def
	}
	return v
}
