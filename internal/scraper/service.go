package scraper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/jobs"
	"github.com/mlfolio/backend/internal/metrics"
	"github.com/mlfolio/backend/internal/storage/models"
	"github.com/mlfolio/backend/internal/webhook"
	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
)

// Job is one scrape run. Records persist in the job store so status polling
// works across restarts.
type Job struct {
	ID          string      `json:"job_id"`
	Source      string      `json:"source"`
	Status      jobs.Status `json:"status"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
	PapersFound int         `json:"papers_found"`
	PapersAdded int         `json:"papers_added"`
	Errors      string      `json:"errors,omitempty"`
}

// Request describes what to scrape.
type Request struct {
	Source     string `json:"source"`
	Days       int    `json:"days"`
	MaxResults int    `json:"max_results"`
	Category   string `json:"category,omitempty"`
}

// Stats summarizes past scrape runs.
type Stats struct {
	TotalJobs          int        `json:"total_jobs"`
	SuccessfulJobs     int        `json:"successful_jobs"`
	FailedJobs         int        `json:"failed_jobs"`
	TotalPapersScraped int        `json:"total_papers_scraped"`
	LastRun            *time.Time `json:"last_run,omitempty"`
}

// Blog source categories folded into paper categories when blog posts join
// the paper stream.
var blogCategoryMap = map[string]string{
	"model-release": CategoryLLM,
	"research":      CategoryNLP,
	"products":      CategoryMLOps,
	"models":        CategoryMultimodal,
}

// Service runs scrape jobs in the background and reports completions to the
// backend webhook.
type Service struct {
	arxiv    *ArxivScraper
	feeds    *FeedScraper
	jobStore *jobs.Store[Job]
	notifier *webhook.Client

	mu     sync.RWMutex
	papers []models.Paper

	wg sync.WaitGroup
}

func NewService(arxiv *ArxivScraper, feeds *FeedScraper, jobStore *jobs.Store[Job], notifier *webhook.Client) *Service {
	return &Service{
		arxiv:    arxiv,
		feeds:    feeds,
		jobStore: jobStore,
		notifier: notifier,
	}
}

// StartScrape creates a job and runs it in the background. The returned job
// is already in running state.
func (s *Service) StartScrape(req Request) (Job, error) {
	switch req.Source {
	case "arxiv", "blogs", "all":
	case "":
		req.Source = "arxiv"
	default:
		return Job{}, fmt.Errorf("%w: unknown scrape source %q", errs.ErrValidation, req.Source)
	}

	job := Job{
		ID:        fmt.Sprintf("%s-%d", req.Source, time.Now().UnixNano()),
		Source:    req.Source,
		Status:    jobs.StatusPending,
		StartTime: time.Now(),
	}
	if err := s.jobStore.Put(job.ID, job); err != nil {
		return Job{}, err
	}

	job.Status = jobs.StatusRunning
	if err := s.jobStore.Put(job.ID, job); err != nil {
		return Job{}, err
	}

	logger.Info("Created scrape job",
		zap.String("job_id", job.ID),
		zap.String("source", job.Source),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(job, req)
	}()

	return job, nil
}

func (s *Service) run(job Job, req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	papers, err := s.collect(ctx, req)

	now := time.Now()
	job.EndTime = &now

	if err != nil {
		s.finish(job, jobs.StatusFailed, func(j *Job) {
			j.Errors = err.Error()
		})
		metrics.ScrapeJobsTotal.WithLabelValues(job.Source, "failed").Inc()
		logger.Error("Scrape job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.papers = append(s.papers, papers...)
	s.mu.Unlock()

	s.finish(job, jobs.StatusCompleted, func(j *Job) {
		j.PapersFound = len(papers)
		j.PapersAdded = len(papers)
	})
	metrics.ScrapeJobsTotal.WithLabelValues(job.Source, "completed").Inc()

	logger.Info("Scrape job completed",
		zap.String("job_id", job.ID),
		zap.Int("papers", len(papers)),
	)

	// Delivery failures must not fail the job.
	if err := s.report(ctx, job, papers); err != nil {
		logger.Error("Webhook delivery failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) collect(ctx context.Context, req Request) ([]models.Paper, error) {
	var papers []models.Paper

	if req.Source == "blogs" {
		posts, err := s.feeds.ScrapeAll(ctx, req.MaxResults)
		if err != nil {
			return nil, err
		}
		for i := range posts {
			mapped, ok := blogCategoryMap[posts[i].Category]
			if !ok {
				mapped = CategoryLLM
			}
			posts[i].Category = mapped
		}
		papers = append(papers, posts...)
	}

	if req.Source == "arxiv" || req.Source == "all" {
		found, err := s.arxiv.Scrape(ctx, req.Days, req.MaxResults, req.Category)
		if err != nil {
			return nil, err
		}
		papers = append(papers, found...)
	}

	return papers, nil
}

func (s *Service) finish(job Job, status jobs.Status, update func(*Job)) {
	if !job.Status.CanTransition(status) {
		logger.Warn("Illegal job transition dropped",
			zap.String("job_id", job.ID),
			zap.String("from", string(job.Status)),
			zap.String("to", string(status)),
		)
		return
	}

	job.Status = status
	update(&job)

	if err := s.jobStore.Put(job.ID, job); err != nil {
		logger.Error("Failed to persist job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *Service) report(ctx context.Context, job Job, papers []models.Paper) error {
	payloads := make([]webhook.PaperPayload, len(papers))
	for i, p := range papers {
		payloads[i] = webhook.PaperPayloadFrom(p)
	}

	return s.notifier.NotifyScrapeComplete(ctx, webhook.ScrapeReport{
		JobID:       job.ID,
		Source:      job.Source,
		Papers:      payloads,
		TotalPapers: len(papers),
		Timestamp:   time.Now(),
	})
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
		return all[i].StartTime.After(all[j].StartTime)
	})
	return all, nil
}

// Papers returns every paper collected by completed jobs this process run.
func (s *Service) Papers() []models.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Paper, len(s.papers))
	copy(out, s.papers)
	return out
}

func (s *Service) Stats() (Stats, error) {
	all, err := s.jobStore.List()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	stats.TotalJobs = len(all)
	for _, job := range all {
		switch job.Status {
		case jobs.StatusCompleted:
			stats.SuccessfulJobs++
			stats.TotalPapersScraped += job.PapersFound
		case jobs.StatusFailed:
			stats.FailedJobs++
		}
		if job.EndTime != nil && (stats.LastRun == nil || job.EndTime.After(*stats.LastRun)) {
			stats.LastRun = job.EndTime
		}
	}
	return stats, nil
}

// Wait blocks until in-flight jobs drain, for graceful shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}
