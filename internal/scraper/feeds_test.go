package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlfolio/backend/pkg/errs"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Test AI Blog</title>
	<link>https://example.com/blog</link>
	<item>
		<title>Introducing GPT-next</title>
		<link>https://example.com/blog/gpt-next</link>
		<description><![CDATA[<p>Our new <b>model</b> improves training efficiency.</p><script>evil()</script>]]></description>
		<pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate>
	</item>
	<item>
		<title>Deployment notes</title>
		<link>https://example.com/blog/deploy</link>
		<description>Plain text body</description>
		<pubDate>Tue, 25 Aug 2026 10:00:00 GMT</pubDate>
	</item>
</channel>
</rss>`

func newFeedTestServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	}))
}

func TestFeedScraperParsesPosts(t *testing.T) {
	srv := newFeedTestServer()
	defer srv.Close()

	s := NewFeedScraper([]FeedSource{
		{Key: "testblog", URL: srv.URL, Category: "research", DisplayName: "Test Blog"},
	})

	posts, err := s.ScrapeAll(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	p := posts[0]
	assert.Equal(t, "Introducing GPT-next", p.Title)
	assert.Equal(t, "https://example.com/blog/gpt-next", p.URL)
	assert.Equal(t, "research", p.Category)
	assert.Equal(t, []string{"Test Blog"}, p.Authors)
	assert.Equal(t, feedRelevanceScore, p.RelevanceScore)
	assert.Equal(t, "testblog", p.Source)

	// HTML stripped, script contents dropped.
	assert.Equal(t, "Our new model improves training efficiency.", p.Abstract)

	// source_id is deterministic across runs.
	assert.Regexp(t, `^testblog-\d+$`, p.SourceID)
	again, err := s.ScrapeAll(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, p.SourceID, again[0].SourceID)
}

func TestFeedScraperMaxPerSource(t *testing.T) {
	srv := newFeedTestServer()
	defer srv.Close()

	s := NewFeedScraper([]FeedSource{
		{Key: "testblog", URL: srv.URL, Category: "research", DisplayName: "Test Blog"},
	})

	posts, err := s.ScrapeAll(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestFeedScraperUnknownSource(t *testing.T) {
	s := NewFeedScraper(nil)

	_, err := s.ScrapeSource(context.Background(), "not-a-blog", 10)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestFeedScraperSkipsDeadFeeds(t *testing.T) {
	srv := newFeedTestServer()
	defer srv.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer dead.Close()

	s := NewFeedScraper([]FeedSource{
		{Key: "dead", URL: dead.URL, Category: "research", DisplayName: "Dead Blog"},
		{Key: "alive", URL: srv.URL, Category: "research", DisplayName: "Live Blog"},
	})

	posts, err := s.ScrapeAll(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestCleanHTMLTruncates(t *testing.T) {
	long := "<p>" + strings.Repeat("word ", 200) + "</p>"
	got := CleanHTML(long)
	assert.Len(t, got, maxFeedSummaryLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, "", CleanHTML(""))
	assert.Equal(t, "short", CleanHTML("<i>short</i>"))
}
