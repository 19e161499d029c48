package models

import "time"

// Paper is a research paper or article tracked by the scraper. URL is the
// identity key: scrapes and webhook deliveries for the same URL update the
// existing row.
type Paper struct {
	ID             string
	Title          string
	Authors        []string
	Abstract       string
	URL            string
	PDFURL         string
	Category       string
	Tags           []string
	RelevanceScore float64
	CitationCount  int
	Source         string
	SourceID       string
	PublishedAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProcessedDocument records a PDF that went through the processing pipeline.
type ProcessedDocument struct {
	ID          string
	URL         string
	Title       string
	ChunkCount  int
	ProcessedAt time.Time
}

// ScrapeJobRecord is the backend's ledger of scrape runs reported over the
// webhook, independent of the scraper's own job store.
type ScrapeJobRecord struct {
	ID            string
	JobID         string
	Source        string
	Status        string
	PapersFound   int
	PapersAdded   int
	PapersUpdated int
	CreatedAt     time.Time
}

// QueryRecord is one chatbot interaction kept for history and suggestions.
type QueryRecord struct {
	ID          string
	SessionID   string
	Question    string
	Answer      string
	ContextUsed int
	LatencyMS   int
	CreatedAt   time.Time
}
