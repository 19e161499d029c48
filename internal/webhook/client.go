// Package webhook delivers service-to-service completion notifications to
// the backend API.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
	"github.com/mlfolio/backend/pkg/retry"
)

// Client posts signed JSON payloads to backend webhook endpoints.
type Client struct {
	baseURL     string
	secret      string
	httpClient  *http.Client
	retryConfig retry.Config
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   time.Second,
			MaxDelay:       10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// PaperPayload is the wire form of a paper in webhook deliveries.
type PaperPayload struct {
	Title          string   `json:"title"`
	Abstract       string   `json:"abstract"`
	Authors        []string `json:"authors"`
	SourceID       string   `json:"source_id"`
	URL            string   `json:"url"`
	PDFURL         string   `json:"pdf_url,omitempty"`
	PublishedDate  string   `json:"published_date,omitempty"`
	Category       string   `json:"category"`
	RelevanceScore float64  `json:"relevance_score"`
	CitationCount  int      `json:"citation_count"`
	Tags           []string `json:"tags"`
}

func PaperPayloadFrom(p models.Paper) PaperPayload {
	payload := PaperPayload{
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
	if !p.PublishedAt.IsZero() {
		payload.PublishedDate = p.PublishedAt.Format("2006-01-02")
	}
	return payload
}

// ScrapeReport is the payload posted when a scrape job finishes.
type ScrapeReport struct {
	JobID       string         `json:"job_id"`
	Source      string         `json:"source"`
	Papers      []PaperPayload `json:"papers"`
	TotalPapers int            `json:"total_papers"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ProcessReport is the payload posted when a document finishes processing.
type ProcessReport struct {
	JobID           string            `json:"job_id"`
	DocumentType    string            `json:"document_type"`
	Title           string            `json:"title"`
	URL             string            `json:"url,omitempty"`
	ChunksProcessed int               `json:"chunks_processed"`
	Status          string            `json:"status"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// NotifyScrapeComplete posts the scrape report. Callers treat failures as
// non-fatal: the job outcome does not depend on delivery.
func (c *Client) NotifyScrapeComplete(ctx context.Context, report ScrapeReport) error {
	return c.post(ctx, "/api/webhooks/scraper-complete/", report)
}

// NotifyDocumentProcessed posts the processing report.
func (c *Client) NotifyDocumentProcessed(ctx context.Context, report ProcessReport) error {
	return c.post(ctx, "/api/webhooks/document-processed/", report)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c.baseURL == "" {
		logger.Debug("Webhook base URL not configured, skipping delivery")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	url := c.baseURL + path

	// A rejected secret will not get better on retry; report it and stop.
	var authErr error

	err = retry.Do(ctx, c.retryConfig, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.secret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: deliver webhook: %v", errs.ErrExternalService, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			authErr = fmt.Errorf("%w: webhook rejected secret", errs.ErrAuth)
			return nil
		case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
			return fmt.Errorf("%w: webhook returned status %d", errs.ErrExternalService, resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if authErr != nil {
		return authErr
	}

	logger.Info("Webhook delivered", zap.String("url", url))
	return nil
}
