// Package processor turns remote PDFs and raw text into embedded chunks in
// the vector store.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
)

// PDFFetcher downloads a PDF and extracts its plain text.
type PDFFetcher struct {
	httpClient *http.Client
}

func NewPDFFetcher() *PDFFetcher {
	return &PDFFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchText downloads url and returns the extracted text of every page.
func (f *PDFFetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build pdf request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: download pdf: %v", errs.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: pdf download returned status %d", errs.ErrExternalService, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read pdf body: %v", errs.ErrExternalService, err)
	}

	text, err := ExtractText(data)
	if err != nil {
		return "", err
	}

	logger.Info("PDF text extracted",
		zap.String("url", url),
		zap.Int("bytes", len(data)),
		zap.Int("chars", len(text)),
	)

	return text, nil
}

// ExtractText pulls plain text out of PDF bytes, page by page.
func ExtractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("Failed to extract page text", zap.Int("page", i), zap.Error(err))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return text, nil
}
