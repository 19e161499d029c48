package scraper

import "strings"

// Paper categories used across the scraper and the papers API.
const (
	CategoryLLM        = "llm"
	CategoryRAG        = "rag"
	CategoryCV         = "cv"
	CategoryMLOps      = "mlops"
	CategoryTraining   = "training"
	CategoryMultimodal = "multimodal"
	CategoryNLP        = "nlp"
)

type categoryRule struct {
	category string
	keywords []string
}

// Rules are checked in order; the first match wins, so broad buckets like
// NLP sit at the bottom. Unmatched papers default to NLP.
var categoryRules = []categoryRule{
	{CategoryLLM, []string{"large language model", "llm", "gpt", "bert", "transformer", "language model"}},
	{CategoryRAG, []string{"retrieval augmented", "rag", "embedding", "vector database", "semantic search"}},
	{CategoryCV, []string{"computer vision", "image", "visual", "object detection", "segmentation"}},
	{CategoryMLOps, []string{"mlops", "deployment", "serving", "inference", "production", "kubernetes"}},
	{CategoryTraining, []string{"training", "optimization", "gradient", "backpropagation"}},
	{CategoryMultimodal, []string{"multimodal", "vision-language", "vlm", "clip"}},
	{CategoryNLP, []string{"natural language", "nlp", "text"}},
}

// Categorize assigns a paper category from its title and abstract.
func Categorize(title, abstract string) string {
	text := strings.ToLower(title + " " + abstract)

	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	return CategoryNLP
}

var highRelevanceKeywords = []string{
	"large language model", "llm", "rag", "retrieval augmented",
	"embedding", "mlops", "deployment", "kubernetes", "inference",
	"serving", "optimization", "distributed training",
}

var mediumRelevanceKeywords = []string{
	"transformer", "attention", "neural network", "deep learning",
	"machine learning", "artificial intelligence",
}

// Relevance scores a paper in [0.5, 1.0]: base 0.5, plus 0.1 per high
// keyword (capped at +0.4) and 0.05 per medium keyword (capped at +0.1).
func Relevance(title, abstract string) float64 {
	text := strings.ToLower(title + " " + abstract)

	var high, medium int
	for _, kw := range highRelevanceKeywords {
		if strings.Contains(text, kw) {
			high++
		}
	}
	for _, kw := range mediumRelevanceKeywords {
		if strings.Contains(text, kw) {
			medium++
		}
	}

	score := 0.5
	score += minFloat(float64(high)*0.1, 0.4)
	score += minFloat(float64(medium)*0.05, 0.1)

	return minFloat(score, 1.0)
}

type tagRule struct {
	tag      string
	keywords []string
}

var paperTagRules = []tagRule{
	{"transformers", []string{"transformer", "attention mechanism"}},
	{"llm", []string{"large language model", "llm"}},
	{"rag", []string{"retrieval augmented", "rag"}},
	{"embeddings", []string{"embedding", "vector"}},
	{"mlops", []string{"mlops", "deployment", "production"}},
	{"kubernetes", []string{"kubernetes", "k8s"}},
	{"distributed", []string{"distributed", "parallel"}},
	{"optimization", []string{"optimization", "gradient descent"}},
	{"fine-tuning", []string{"fine-tuning", "fine tuning", "transfer learning"}},
	{"inference", []string{"inference", "serving"}},
	{"quantization", []string{"quantization", "compression"}},
	{"prompt-engineering", []string{"prompt engineering", "prompt"}},
}

const maxPaperTags = 10

// ExtractTags picks up to maxPaperTags tags in rule order.
func ExtractTags(title, abstract string) []string {
	text := strings.ToLower(title + " " + abstract)

	var tags []string
	for _, rule := range paperTagRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				tags = append(tags, rule.tag)
				break
			}
		}
		if len(tags) == maxPaperTags {
			break
		}
	}
	return tags
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
