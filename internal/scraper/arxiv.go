package scraper

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
)

const defaultArxivBaseURL = "http://export.arxiv.org/api/query"

// arXiv categories queried for new papers.
var arxivCategories = []string{"cs.AI", "cs.LG", "cs.CL", "cs.CV", "cs.NE"}

// ArxivScraper fetches recent papers from the arXiv export API.
type ArxivScraper struct {
	baseURL    string
	httpClient *http.Client
}

func NewArxivScraper(baseURL string) *ArxivScraper {
	if baseURL == "" {
		baseURL = defaultArxivBaseURL
	}
	return &ArxivScraper{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string `xml:"id"`
	Title      string `xml:"title"`
	Summary    string `xml:"summary"`
	Published  string `xml:"published"`
	Authors    []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

// Scrape fetches up to maxResults papers submitted within the last `days`
// days, newest first. categoryFilter, when non-empty, keeps only papers
// classified into that category.
func (s *ArxivScraper) Scrape(ctx context.Context, days, maxResults int, categoryFilter string) ([]models.Paper, error) {
	if days <= 0 {
		days = 7
	}
	if maxResults <= 0 {
		maxResults = 50
	}

	terms := make([]string, len(arxivCategories))
	for i, cat := range arxivCategories {
		terms[i] = "cat:" + cat
	}

	params := url.Values{}
	params.Set("search_query", strings.Join(terms, " OR "))
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	reqURL := s.baseURL + "?" + params.Encode()
	logger.Info("Fetching from arXiv API",
		zap.Int("days", days),
		zap.Int("max_results", maxResults),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build arxiv request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch arxiv feed: %v", errs.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: arxiv returned status %d", errs.ErrExternalService, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read arxiv response: %v", errs.ErrExternalService, err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: parse arxiv feed: %v", errs.ErrExternalService, err)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	var papers []models.Paper

	for _, entry := range feed.Entries {
		paper, ok := s.parseEntry(entry, cutoff, categoryFilter)
		if !ok {
			continue
		}
		papers = append(papers, paper)
	}

	logger.Info("arXiv scrape parsed",
		zap.Int("entries", len(feed.Entries)),
		zap.Int("papers", len(papers)),
	)

	return papers, nil
}

func (s *ArxivScraper) parseEntry(entry atomEntry, cutoff time.Time, categoryFilter string) (models.Paper, bool) {
	arxivID := entry.ID
	if i := strings.LastIndex(arxivID, "/abs/"); i != -1 {
		arxivID = arxivID[i+len("/abs/"):]
	}

	title := normalizeAtomText(entry.Title)
	abstract := normalizeAtomText(entry.Summary)
	if title == "" || arxivID == "" {
		return models.Paper{}, false
	}

	published, err := time.Parse("2006-01-02", firstN(entry.Published, 10))
	if err != nil {
		logger.Warn("Unparseable published date",
			zap.String("arxiv_id", arxivID),
			zap.String("published", entry.Published),
		)
		return models.Paper{}, false
	}
	if published.Before(cutoff) {
		return models.Paper{}, false
	}

	category := Categorize(title, abstract)
	if categoryFilter != "" && category != categoryFilter {
		return models.Paper{}, false
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	return models.Paper{
		Title:          firstN(title, 500),
		Authors:        authors,
		Abstract:       abstract,
		URL:            "https://arxiv.org/abs/" + arxivID,
		PDFURL:         "https://arxiv.org/pdf/" + arxivID + ".pdf",
		Category:       category,
		Tags:           ExtractTags(title, abstract),
		RelevanceScore: Relevance(title, abstract),
		Source:         "arxiv",
		SourceID:       arxivID,
		PublishedAt:    published,
	}, true
}

func normalizeAtomText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
