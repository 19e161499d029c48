package scraper

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
)

// Handler exposes the scraper service over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the scraper endpoints on app.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Post("/scrape", h.handleScrape)
	app.Get("/scrape/status/:job_id", h.handleJobStatus)
	app.Get("/scrape/history", h.handleHistory)
	app.Get("/papers", h.handlePapers)
	app.Get("/stats", h.handleStats)
	app.Get("/health", h.handleHealth)
}

func (h *Handler) handleScrape(c *fiber.Ctx) error {
	var req Request
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	job, err := h.service.StartScrape(req)
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to start scrape", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start scrape job",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(job)
}

func (h *Handler) handleJobStatus(c *fiber.Ctx) error {
	job, err := h.service.GetJob(c.Params("job_id"))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Job not found",
			})
		}
		logger.Error("Failed to load job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job",
		})
	}

	return c.JSON(job)
}

func (h *Handler) handleHistory(c *fiber.Ctx) error {
	jobs, err := h.service.History()
	if err != nil {
		logger.Error("Failed to load job history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job history",
		})
	}

	return c.JSON(fiber.Map{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *Handler) handlePapers(c *fiber.Ctx) error {
	papers := h.service.Papers()
	return c.JSON(fiber.Map{
		"papers": papers,
		"count":  len(papers),
	})
}

func (h *Handler) handleStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats()
	if err != nil {
		logger.Error("Failed to compute stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}

	return c.JSON(stats)
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "scraper",
	})
}
