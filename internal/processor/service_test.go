package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlfolio/backend/internal/jobs"
	"github.com/mlfolio/backend/internal/vector/local"
	"github.com/mlfolio/backend/internal/webhook"
	"github.com/mlfolio/backend/pkg/errs"
)

type fakeSource struct {
	text string
	err  error
}

func (f *fakeSource) FetchText(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func newTestService(t *testing.T, source TextSource) (*Service, *local.Store) {
	t.Helper()

	store, err := local.Open(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jobStore, err := jobs.Open[Job](filepath.Join(t.TempDir(), "jobs.db"), "process")
	require.NoError(t, err)
	t.Cleanup(func() { jobStore.Close() })

	return NewService(200, 40, source, fakeEmbedder{}, store, jobStore, webhook.NewClient("", "secret")), store
}

func TestProcessPDFHappyPath(t *testing.T) {
	text := strings.Repeat("This is a sentence about embeddings. ", 30)
	s, store := newTestService(t, &fakeSource{text: text})

	job, err := s.ProcessPDF(PDFRequest{URL: "https://example.com/paper.pdf", Title: "Paper"})
	require.NoError(t, err)
	assert.Equal(t, "pdf", job.Type)

	s.Wait()

	done, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Greater(t, done.TotalChunks, 1)
	assert.Equal(t, done.TotalChunks, done.ChunksProcessed)
	assert.InDelta(t, 100, done.Progress(), 1e-9)
	require.NotNil(t, done.CompletedAt)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, done.TotalChunks, count)

	// Chunk metadata names the source document.
	results, err := store.Search(context.Background(), []float32{100, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/paper.pdf", results[0].Metadata["source"])
	assert.Equal(t, "Paper", results[0].Metadata["title"])
}

func TestProcessPDFFailsOnFetchError(t *testing.T) {
	s, _ := newTestService(t, &fakeSource{err: fmt.Errorf("%w: download failed", errs.ErrExternalService)})

	job, err := s.ProcessPDF(PDFRequest{URL: "https://example.com/404.pdf"})
	require.NoError(t, err)
	s.Wait()

	done, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, done.Status)
	assert.NotEmpty(t, done.Errors)
	assert.Zero(t, done.Progress())
}

func TestProcessTextValidation(t *testing.T) {
	s, _ := newTestService(t, &fakeSource{})

	_, err := s.ProcessText(TextRequest{})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.ProcessPDF(PDFRequest{})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestProcessTextStoresChunks(t *testing.T) {
	s, store := newTestService(t, &fakeSource{})

	job, err := s.ProcessText(TextRequest{
		Text:     strings.Repeat("Short sentences for the chunker. ", 20),
		Title:    "notes",
		Metadata: map[string]string{"category": "technical"},
	})
	require.NoError(t, err)
	s.Wait()

	done, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, done.Status)

	results, err := store.Search(context.Background(), []float32{50, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "technical", results[0].Metadata["category"])
}

func TestHistoryNewestFirst(t *testing.T) {
	s, _ := newTestService(t, &fakeSource{})

	first, err := s.ProcessText(TextRequest{Text: "alpha beta gamma"})
	require.NoError(t, err)
	second, err := s.ProcessText(TextRequest{Text: "delta epsilon zeta"})
	require.NoError(t, err)
	s.Wait()

	history, err := s.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}
