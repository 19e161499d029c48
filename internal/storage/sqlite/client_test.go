package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/pkg/errs"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func samplePaper(url string) *models.Paper {
	return &models.Paper{
		Title:          "Attention Is All You Need",
		Authors:        []string{"Vaswani", "Shazeer"},
		Abstract:       "We propose the Transformer architecture.",
		URL:            url,
		Category:       "llm",
		Tags:           []string{"transformer", "attention"},
		RelevanceScore: 0.9,
		CitationCount:  120000,
		Source:         "arxiv",
		SourceID:       "1706.03762",
		PublishedAt:    time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsertPaperCreateThenUpdate(t *testing.T) {
	c := newTestClient(t)

	created, err := c.UpsertPaper(samplePaper("https://arxiv.org/abs/1706.03762"))
	require.NoError(t, err)
	assert.True(t, created)

	// Same URL again: updated, not duplicated.
	p := samplePaper("https://arxiv.org/abs/1706.03762")
	p.Title = "Attention Is All You Need (v2)"
	p.CitationCount = 130000
	created, err = c.UpsertPaper(p)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := c.CountPapers()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := c.GetPaperByURL("https://arxiv.org/abs/1706.03762")
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need (v2)", got.Title)
	assert.Equal(t, []string{"Vaswani", "Shazeer"}, got.Authors)
	assert.Equal(t, []string{"transformer", "attention"}, got.Tags)
	assert.Equal(t, 130000, got.CitationCount)
}

func TestGetPaperByURLNotFound(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetPaperByURL("https://example.com/missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListPapersFiltersByCategory(t *testing.T) {
	c := newTestClient(t)

	a := samplePaper("https://arxiv.org/abs/1")
	a.Category = "llm"
	b := samplePaper("https://arxiv.org/abs/2")
	b.Category = "cv"

	_, err := c.UpsertPaper(a)
	require.NoError(t, err)
	_, err = c.UpsertPaper(b)
	require.NoError(t, err)

	papers, err := c.ListPapers("cv", 10, 0)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "https://arxiv.org/abs/2", papers[0].URL)

	papers, err = c.ListPapers("", 10, 0)
	require.NoError(t, err)
	assert.Len(t, papers, 2)
}

func TestSearchPapersMatchesTitleAbstractTags(t *testing.T) {
	c := newTestClient(t)

	p := samplePaper("https://arxiv.org/abs/1706.03762")
	_, err := c.UpsertPaper(p)
	require.NoError(t, err)

	for _, keyword := range []string{"attention", "TRANSFORMER", "architecture"} {
		papers, err := c.SearchPapers(keyword, 10)
		require.NoError(t, err)
		assert.Len(t, papers, 1, "keyword %q", keyword)
	}

	papers, err := c.SearchPapers("quantum chromodynamics", 10)
	require.NoError(t, err)
	assert.Empty(t, papers)
}

func TestQueryHistoryRoundTrip(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.InsertQueryRecord(&models.QueryRecord{
		SessionID:   "s1",
		Question:    "What projects use RAG?",
		Answer:      "Several projects use retrieval.",
		ContextUsed: 3,
		LatencyMS:   120,
	}))

	records, err := c.GetRecentQueries(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "What projects use RAG?", records[0].Question)
	assert.Equal(t, 3, records[0].ContextUsed)
	assert.NotEmpty(t, records[0].ID)
}

func TestInsertScrapeJobRecord(t *testing.T) {
	c := newTestClient(t)

	record := &models.ScrapeJobRecord{
		JobID:         "scrape_abc",
		Source:        "arxiv",
		Status:        "completed",
		PapersFound:   10,
		PapersAdded:   7,
		PapersUpdated: 3,
	}
	require.NoError(t, c.InsertScrapeJobRecord(record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestInsertProcessedDocument(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.InsertProcessedDocument(&models.ProcessedDocument{
		URL:        "https://example.com/paper.pdf",
		Title:      "paper.pdf",
		ChunkCount: 12,
	}))
}
