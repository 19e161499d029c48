package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS papers (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		authors TEXT,
		abstract TEXT,
		url TEXT UNIQUE NOT NULL,
		pdf_url TEXT,
		category TEXT,
		tags TEXT,
		relevance_score REAL,
		citation_count INTEGER DEFAULT 0,
		source TEXT,
		source_id TEXT,
		published_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_papers_category ON papers(category);
	CREATE INDEX IF NOT EXISTS idx_papers_source ON papers(source);
	CREATE INDEX IF NOT EXISTS idx_papers_published ON papers(published_at);

	CREATE TABLE IF NOT EXISTS processed_documents (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT,
		chunk_count INTEGER NOT NULL,
		processed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_processed_url ON processed_documents(url);

	CREATE TABLE IF NOT EXISTS scraper_jobs (
		id TEXT PRIMARY KEY,
		job_id TEXT,
		source TEXT,
		status TEXT,
		papers_found INTEGER,
		papers_added INTEGER,
		papers_updated INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scraper_jobs_created ON scraper_jobs(created_at);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		question TEXT NOT NULL,
		answer TEXT,
		context_used INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_session ON query_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertPaper inserts a paper keyed by URL, or refreshes the existing row.
// Returns true when a new row was created.
func (c *Client) UpsertPaper(p *models.Paper) (bool, error) {
	authorsJSON, _ := json.Marshal(p.Authors)
	tagsJSON, _ := json.Marshal(p.Tags)
	now := time.Now()

	var existingID string
	err := c.db.QueryRow(`SELECT id FROM papers WHERE url = ?`, p.URL).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = now
		p.UpdatedAt = now

		_, err := c.db.Exec(`
			INSERT INTO papers (id, title, authors, abstract, url, pdf_url, category, tags,
				relevance_score, citation_count, source, source_id, published_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Title, string(authorsJSON), p.Abstract, p.URL, p.PDFURL, p.Category,
			string(tagsJSON), p.RelevanceScore, p.CitationCount, p.Source, p.SourceID,
			p.PublishedAt.Unix(), now.Unix(), now.Unix(),
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert paper: %w", err)
		}

		logger.Debug("Paper created", zap.String("paper_id", p.ID), zap.String("url", p.URL))
		return true, nil

	case err != nil:
		return false, fmt.Errorf("failed to look up paper: %w", err)
	}

	p.ID = existingID
	p.UpdatedAt = now

	_, err = c.db.Exec(`
		UPDATE papers SET title = ?, authors = ?, abstract = ?, pdf_url = ?, category = ?,
			tags = ?, relevance_score = ?, citation_count = ?, source = ?, source_id = ?,
			published_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, string(authorsJSON), p.Abstract, p.PDFURL, p.Category,
		string(tagsJSON), p.RelevanceScore, p.CitationCount, p.Source, p.SourceID,
		p.PublishedAt.Unix(), now.Unix(), existingID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update paper: %w", err)
	}

	logger.Debug("Paper updated", zap.String("paper_id", existingID), zap.String("url", p.URL))
	return false, nil
}

func (c *Client) GetPaperByURL(url string) (*models.Paper, error) {
	row := c.db.QueryRow(`
		SELECT id, title, authors, abstract, url, pdf_url, category, tags,
			relevance_score, citation_count, source, source_id, published_at, created_at, updated_at
		FROM papers WHERE url = ?`, url)

	p, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: paper %s", errs.ErrNotFound, url)
	}
	return p, err
}

// ListPapers returns papers newest-first, optionally filtered by category.
func (c *Client) ListPapers(category string, limit, offset int) ([]models.Paper, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, title, authors, abstract, url, pdf_url, category, tags,
			relevance_score, citation_count, source, source_id, published_at, created_at, updated_at
		FROM papers`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY published_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows)
}

// SearchPapers matches keyword against title, abstract and tags.
func (c *Client) SearchPapers(keyword string, limit int) ([]models.Paper, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(keyword) + "%"

	rows, err := c.db.Query(`
		SELECT id, title, authors, abstract, url, pdf_url, category, tags,
			relevance_score, citation_count, source, source_id, published_at, created_at, updated_at
		FROM papers
		WHERE lower(title) LIKE ? OR lower(abstract) LIKE ? OR lower(tags) LIKE ?
		ORDER BY relevance_score DESC, published_at DESC
		LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search papers: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows)
}

func (c *Client) CountPapers() (int, error) {
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM papers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count papers: %w", err)
	}
	return count, nil
}

func (c *Client) InsertProcessedDocument(doc *models.ProcessedDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now()
	}

	_, err := c.db.Exec(`
		INSERT INTO processed_documents (id, url, title, chunk_count, processed_at)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.URL, doc.Title, doc.ChunkCount, doc.ProcessedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert processed document: %w", err)
	}
	return nil
}

// InsertScrapeJobRecord records a scrape run reported over the webhook.
func (c *Client) InsertScrapeJobRecord(record *models.ScrapeJobRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := c.db.Exec(`
		INSERT INTO scraper_jobs (id, job_id, source, status, papers_found, papers_added, papers_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.JobID, record.Source, record.Status,
		record.PapersFound, record.PapersAdded, record.PapersUpdated, record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scrape job record: %w", err)
	}
	return nil
}

func (c *Client) InsertQueryRecord(record *models.QueryRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := c.db.Exec(`
		INSERT INTO query_history (id, session_id, question, answer, context_used, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.Question, record.Answer,
		record.ContextUsed, record.LatencyMS, record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.Int("context_used", record.ContextUsed),
	)
	return nil
}

func (c *Client) GetRecentQueries(limit int) ([]models.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := c.db.Query(`
		SELECT id, session_id, question, answer, context_used, latency_ms, created_at
		FROM query_history
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Question, &r.Answer,
			&r.ContextUsed, &r.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (*models.Paper, error) {
	var p models.Paper
	var authorsJSON, tagsJSON string
	var publishedAt, createdAt, updatedAt int64

	err := row.Scan(&p.ID, &p.Title, &authorsJSON, &p.Abstract, &p.URL,
		&p.PDFURL, &p.Category, &tagsJSON, &p.RelevanceScore, &p.CitationCount, &p.Source, &p.SourceID,
		&publishedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(authorsJSON), &p.Authors)
	json.Unmarshal([]byte(tagsJSON), &p.Tags)
	p.PublishedAt = time.Unix(publishedAt, 0)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	return &p, nil
}

func collectPapers(rows *sql.Rows) ([]models.Paper, error) {
	var papers []models.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		papers = append(papers, *p)
	}
	return papers, rows.Err()
}
