package handlers

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/metrics"
	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/internal/webhook"
	"github.com/mlfolio/backend/pkg/logger"
)

// PaperWriter persists papers and processed-document records delivered by
// the scraper and processor services.
type PaperWriter interface {
	UpsertPaper(p *models.Paper) (bool, error)
	InsertScrapeJobRecord(record *models.ScrapeJobRecord) error
	InsertProcessedDocument(doc *models.ProcessedDocument) error
}

// WebhookHandler receives completion reports from the scraper and processor
// services. All endpoints require the shared webhook secret; authentication
// failures return 401 before anything is written.
type WebhookHandler struct {
	db     PaperWriter
	secret string
}

func NewWebhookHandler(db PaperWriter, secret string) *WebhookHandler {
	return &WebhookHandler{db: db, secret: secret}
}

// RequireSecret authenticates webhook deliveries. The secret may arrive as
// a bearer token or an X-Webhook-Secret header.
func (h *WebhookHandler) RequireSecret() fiber.Handler {
	return func(c *fiber.Ctx) error {
		provided := c.Get("X-Webhook-Secret")
		if provided == "" {
			auth := c.Get(fiber.HeaderAuthorization)
			provided = strings.TrimPrefix(auth, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
			logger.Warn("Webhook authentication failed",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			metrics.WebhookDeliveries.WithLabelValues(c.Path(), "unauthorized").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid webhook secret",
			})
		}

		return c.Next()
	}
}

// HandleScraperComplete upserts the delivered papers, keyed by URL, and
// reports how many were created versus updated.
func (h *WebhookHandler) HandleScraperComplete(c *fiber.Ctx) error {
	var report webhook.ScrapeReport
	if err := c.BodyParser(&report); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}

	var created, updated int
	for _, payload := range report.Papers {
		if payload.URL == "" {
			continue
		}
		paper := paperFromPayload(payload)
		paper.Source = report.Source
		wasCreated, err := h.db.UpsertPaper(&paper)
		if err != nil {
			logger.Error("Failed to upsert paper",
				zap.String("url", paper.URL),
				zap.Error(err),
			)
			continue
		}
		if wasCreated {
			created++
			metrics.PapersUpserted.WithLabelValues("created").Inc()
		} else {
			updated++
			metrics.PapersUpserted.WithLabelValues("updated").Inc()
		}
	}

	if err := h.db.InsertScrapeJobRecord(&models.ScrapeJobRecord{
		JobID:         report.JobID,
		Source:        report.Source,
		Status:        "completed",
		PapersFound:   len(report.Papers),
		PapersAdded:   created,
		PapersUpdated: updated,
	}); err != nil {
		logger.Error("Failed to record scrape job", zap.String("job_id", report.JobID), zap.Error(err))
	}

	metrics.WebhookDeliveries.WithLabelValues("scraper-complete", "ok").Inc()

	logger.Info("Scrape report processed",
		zap.String("job_id", report.JobID),
		zap.String("source", report.Source),
		zap.Int("papers_created", created),
		zap.Int("papers_updated", updated),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":         "success",
		"job_id":         report.JobID,
		"papers_created": created,
		"papers_updated": updated,
		"total_papers":   len(report.Papers),
	})
}

// HandleProcessorComplete records a processed document.
func (h *WebhookHandler) HandleProcessorComplete(c *fiber.Ctx) error {
	var report webhook.ProcessReport
	if err := c.BodyParser(&report); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}

	doc := models.ProcessedDocument{
		URL:         report.URL,
		Title:       report.Title,
		ChunkCount:  report.ChunksProcessed,
		ProcessedAt: report.Timestamp,
	}
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now()
	}

	if err := h.db.InsertProcessedDocument(&doc); err != nil {
		logger.Error("Failed to record processed document",
			zap.String("url", report.URL),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record processed document",
		})
	}

	metrics.WebhookDeliveries.WithLabelValues("document-processed", "ok").Inc()

	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

func paperFromPayload(p webhook.PaperPayload) models.Paper {
	paper := models.Paper{
		Title:          p.Title,
		Abstract:       p.Abstract,
		Authors:        p.Authors,
		SourceID:       p.SourceID,
		URL:            p.URL,
		PDFURL:         p.PDFURL,
		Category:       p.Category,
		RelevanceScore: p.RelevanceScore,
		CitationCount:  p.CitationCount,
		Tags:           p.Tags,
	}
	if p.PublishedDate != "" {
		if published, err := time.Parse("2006-01-02", p.PublishedDate); err == nil {
			paper.PublishedAt = published
		}
	}
	return paper
}
