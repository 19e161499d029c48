package processor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/chunker"
	"github.com/mlfolio/backend/internal/jobs"
	"github.com/mlfolio/backend/internal/metrics"
	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/internal/webhook"
	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
)

// TextSource fetches document text for processing.
type TextSource interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Embedder turns texts into vectors, preserving order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Job tracks one document through the processing pipeline.
type Job struct {
	ID              string      `json:"job_id"`
	Type            string      `json:"type"`
	URL             string      `json:"url,omitempty"`
	Title           string      `json:"title,omitempty"`
	Status          jobs.Status `json:"status"`
	ChunksProcessed int         `json:"chunks_processed"`
	TotalChunks     int         `json:"total_chunks"`
	Errors          string      `json:"errors,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// Progress is percent complete, 0-100.
func (j Job) Progress() float64 {
	if j.TotalChunks > 0 {
		return float64(j.ChunksProcessed) / float64(j.TotalChunks) * 100
	}
	if j.Status == jobs.StatusCompleted {
		return 100
	}
	return 0
}

// PDFRequest asks for a remote PDF to be processed.
type PDFRequest struct {
	URL      string            `json:"url"`
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TextRequest asks for raw text to be processed.
type TextRequest struct {
	Text     string            `json:"text"`
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Service runs processing jobs in the background.
type Service struct {
	chunkSize int
	overlap   int
	source    TextSource
	embedder  Embedder
	store     vector.Store
	jobStore  *jobs.Store[Job]
	notifier  *webhook.Client

	wg sync.WaitGroup
}

func NewService(chunkSize, overlap int, source TextSource, embedder Embedder, store vector.Store, jobStore *jobs.Store[Job], notifier *webhook.Client) *Service {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 200
	}
	return &Service{
		chunkSize: chunkSize,
		overlap:   overlap,
		source:    source,
		embedder:  embedder,
		store:     store,
		jobStore:  jobStore,
		notifier:  notifier,
	}
}

// ProcessPDF queues a PDF for download and indexing.
func (s *Service) ProcessPDF(req PDFRequest) (Job, error) {
	if req.URL == "" {
		return Job{}, fmt.Errorf("%w: pdf url is required", errs.ErrValidation)
	}

	job, err := s.newJob("pdf", req.URL, req.Title)
	if err != nil {
		return Job{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(job, func(ctx context.Context) (string, error) {
			return s.source.FetchText(ctx, req.URL)
		}, req.Metadata)
	}()

	return job, nil
}

// ProcessText queues raw text for indexing.
func (s *Service) ProcessText(req TextRequest) (Job, error) {
	if req.Text == "" {
		return Job{}, fmt.Errorf("%w: text is required", errs.ErrValidation)
	}

	job, err := s.newJob("text", "", req.Title)
	if err != nil {
		return Job{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(job, func(context.Context) (string, error) {
			return req.Text, nil
		}, req.Metadata)
	}()

	return job, nil
}

func (s *Service) newJob(kind, url, title string) (Job, error) {
	job := Job{
		ID:        fmt.Sprintf("%s-%d", kind, time.Now().UnixNano()),
		Type:      kind,
		URL:       url,
		Title:     title,
		Status:    jobs.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.jobStore.Put(job.ID, job); err != nil {
		return Job{}, err
	}

	logger.Info("Created processing job",
		zap.String("job_id", job.ID),
		zap.String("type", kind),
	)
	return job, nil
}

func (s *Service) run(job Job, fetch func(context.Context) (string, error), metadata map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	job.Status = jobs.StatusRunning
	s.put(job)

	text, err := fetch(ctx)
	if err != nil {
		s.fail(job, err)
		return
	}

	chunks := chunker.SplitBounded(text, s.chunkSize, s.overlap)
	if len(chunks) == 0 {
		s.fail(job, fmt.Errorf("document produced no chunks"))
		return
	}

	job.TotalChunks = len(chunks)
	s.put(job)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.fail(job, err)
		return
	}

	docs := make([]vector.Document, len(chunks))
	for i, c := range chunks {
		meta := map[string]string{
			"chunk_id":     strconv.Itoa(c.Index),
			"total_chunks": strconv.Itoa(len(chunks)),
			"type":         job.Type,
		}
		if job.URL != "" {
			meta["source"] = job.URL
		}
		if job.Title != "" {
			meta["title"] = job.Title
		}
		for k, v := range metadata {
			meta[k] = v
		}
		docs[i] = vector.Document{Text: texts[i], Embedding: embeddings[i], Metadata: meta}
	}

	if _, err := s.store.Add(ctx, docs); err != nil {
		s.fail(job, err)
		return
	}

	now := time.Now()
	job.Status = jobs.StatusCompleted
	job.ChunksProcessed = len(chunks)
	job.CompletedAt = &now
	s.put(job)

	metrics.DocumentsProcessed.Inc()
	if count, err := s.store.Count(ctx); err == nil {
		metrics.VectorStoreDocuments.Set(float64(count))
	}

	logger.Info("Processing job completed",
		zap.String("job_id", job.ID),
		zap.Int("chunks", len(chunks)),
	)

	// Delivery failures must not fail the job.
	if err := s.notifier.NotifyDocumentProcessed(ctx, webhook.ProcessReport{
		JobID:           job.ID,
		DocumentType:    job.Type,
		Title:           job.Title,
		URL:             job.URL,
		ChunksProcessed: len(chunks),
		Status:          string(jobs.StatusCompleted),
		Metadata:        metadata,
		Timestamp:       now,
	}); err != nil {
		logger.Error("Webhook delivery failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) fail(job Job, err error) {
	now := time.Now()
	job.Status = jobs.StatusFailed
	job.Errors = err.Error()
	job.CompletedAt = &now
	s.put(job)

	logger.Error("Processing job failed",
		zap.String("job_id", job.ID),
		zap.Error(err),
	)
}

func (s *Service) put(job Job) {
	if err := s.jobStore.Put(job.ID, job); err != nil {
		logger.Error("Failed to persist job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *Service) GetJob(id string) (Job, error) {
	return s.jobStore.Get(id)
}

// History returns all jobs, newest first.
func (s *Service) History() ([]Job, error) {
	all, err := s.jobStore.List()
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

// Search embeds query and returns the closest stored chunks.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]vector.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", errs.ErrValidation)
	}
	if topK <= 0 {
		topK = 5
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.store.Search(ctx, embeddings[0], topK)
}

// Wait blocks until in-flight jobs drain, for graceful shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}
