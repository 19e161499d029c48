package processor

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
)

// Handler exposes the document processor over HTTP.
type Handler struct {
	service *Service
	store   vector.Store
}

func NewHandler(service *Service, store vector.Store) *Handler {
	return &Handler{service: service, store: store}
}

// RegisterRoutes mounts the processor endpoints on app.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Post("/process/pdf", h.handleProcessPDF)
	app.Post("/process/text", h.handleProcessText)
	app.Get("/jobs/:job_id", h.handleJobStatus)
	app.Get("/jobs", h.handleHistory)
	app.Get("/query", h.handleQuery)
	app.Get("/stats", h.handleStats)
	app.Get("/health", h.handleHealth)
}

// jobView wraps a job with its computed progress percentage.
type jobView struct {
	Job
	Progress float64 `json:"progress"`
}

func viewOf(job Job) jobView {
	return jobView{Job: job, Progress: job.Progress()}
}

func (h *Handler) handleProcessPDF(c *fiber.Ctx) error {
	var req PDFRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	job, err := h.service.ProcessPDF(req)
	if err != nil {
		return h.startError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(viewOf(job))
}

func (h *Handler) handleProcessText(c *fiber.Ctx) error {
	var req TextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	job, err := h.service.ProcessText(req)
	if err != nil {
		return h.startError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(viewOf(job))
}

func (h *Handler) startError(c *fiber.Ctx, err error) error {
	if errors.Is(err, errs.ErrValidation) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	logger.Error("Failed to start processing job", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to start processing job",
	})
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

	return c.JSON(viewOf(job))
}

func (h *Handler) handleHistory(c *fiber.Ctx) error {
	history, err := h.service.History()
	if err != nil {
		logger.Error("Failed to load job history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job history",
		})
	}

	views := make([]jobView, len(history))
	for i, job := range history {
		views[i] = viewOf(job)
	}

	return c.JSON(fiber.Map{
		"jobs":  views,
		"count": len(views),
	})
}

func (h *Handler) handleQuery(c *fiber.Ctx) error {
	k, err := strconv.Atoi(c.Query("k", "5"))
	if err != nil {
		k = 5
	}

	results, err := h.service.Search(c.Context(), c.Query("q"), k)
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Similarity query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Query failed",
		})
	}

	return c.JSON(fiber.Map{
		"results": results,
		"count":   len(results),
	})
}

func (h *Handler) handleStats(c *fiber.Ctx) error {
	count, err := h.store.Count(c.Context())
	if err != nil {
		logger.Error("Failed to count stored chunks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count stored chunks",
		})
	}

	return c.JSON(fiber.Map{
		"vector_store_documents": count,
	})
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "processor",
	})
}
