// Package evaluation scores chatbot answer quality against a golden
// dataset of questions with known-good answers.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/chatbot"
	"github.com/mlfolio/backend/pkg/logger"
)

// Querier answers a question; satisfied by chatbot.Engine.
type Querier interface {
	Query(ctx context.Context, question string, k int, includeSources bool) chatbot.Response
}

// Embedder supplies embeddings for answer/ground-truth similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Evaluator struct {
	engine   Querier
	embedder Embedder
}

func NewEvaluator(engine Querier, embedder Embedder) *Evaluator {
	return &Evaluator{engine: engine, embedder: embedder}
}

// Dataset is a golden set of questions with expected answers.
type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Question    string   `json:"question"`
	GroundTruth string   `json:"ground_truth"`
	Category    string   `json:"category,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// ItemResult scores one answered question.
type ItemResult struct {
	Question         string
	Answered         bool
	ContextUsed      int
	KeywordHitRate   float64
	CosineSimilarity float64
}

// Report aggregates item results over a dataset run.
type Report struct {
	TotalQuestions      int
	AnsweredCount       int
	UnansweredCount     int
	AnsweredPercentage  float64
	AvgContextUsed      float64
	AvgKeywordHitRate   float64
	AvgCosineSimilarity float64
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

// EvaluateItem runs one question through the engine and scores the answer.
func (e *Evaluator) EvaluateItem(ctx context.Context, item DatasetItem) ItemResult {
	resp := e.engine.Query(ctx, item.Question, 0, false)

	result := ItemResult{
		Question:    item.Question,
		Answered:    resp.ContextUsed > 0,
		ContextUsed: resp.ContextUsed,
	}

	if !result.Answered {
		return result
	}

	result.KeywordHitRate = keywordHitRate(resp.Answer, item.Keywords)

	if item.GroundTruth != "" {
		sim, err := e.similarity(ctx, resp.Answer, item.GroundTruth)
		if err != nil {
			logger.Warn("Failed to compute answer similarity", zap.Error(err))
		} else {
			result.CosineSimilarity = sim
		}
	}

	return result
}

// Run evaluates the whole dataset and aggregates scores.
func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) *Report {
	logger.Info("Running evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{TotalQuestions: len(dataset.Items)}
	var totalContext, totalHitRate, totalSim float64

	for i, item := range dataset.Items {
		logger.Debug("Evaluating question", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		result := e.EvaluateItem(ctx, item)
		if result.Answered {
			report.AnsweredCount++
		} else {
			report.UnansweredCount++
		}
		totalContext += float64(result.ContextUsed)
		totalHitRate += result.KeywordHitRate
		totalSim += result.CosineSimilarity
	}

	if report.TotalQuestions > 0 {
		n := float64(report.TotalQuestions)
		report.AnsweredPercentage = float64(report.AnsweredCount) / n * 100
		report.AvgContextUsed = totalContext / n
		report.AvgKeywordHitRate = totalHitRate / n
		report.AvgCosineSimilarity = totalSim / n
	}

	logger.Info("Evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Int("answered", report.AnsweredCount),
		zap.Float64("avg_similarity", report.AvgCosineSimilarity),
	)

	return report
}

func (e *Evaluator) similarity(ctx context.Context, answer, groundTruth string) (float64, error) {
	a, err := e.embedder.Embed(ctx, answer)
	if err != nil {
		return 0, err
	}
	b, err := e.embedder.Embed(ctx, groundTruth)
	if err != nil {
		return 0, err
	}
	return cosineSimilarity(a, b), nil
}

func keywordHitRate(answer string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(answer)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FormatReport renders a report for CLI output.
func FormatReport(report *Report) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Total Questions: %d
Answered: %d (%.1f%%)
Unanswered: %d

Averages:
- Context Chunks Used: %.2f
- Keyword Hit Rate: %.2f
- Answer Similarity: %.3f
`,
		report.TotalQuestions,
		report.AnsweredCount, report.AnsweredPercentage,
		report.UnansweredCount,
		report.AvgContextUsed,
		report.AvgKeywordHitRate,
		report.AvgCosineSimilarity,
	)
}
