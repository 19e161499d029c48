package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeRuleOrder(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		abstract string
		want     string
	}{
		{"llm keyword", "Scaling GPT models", "", CategoryLLM},
		// "transformer" hits the LLM rule before anything else.
		{"llm beats training", "Training transformer models", "gradient descent", CategoryLLM},
		{"rag", "Dense retrieval augmented generation", "", CategoryRAG},
		{"cv", "Object detection benchmarks", "image segmentation", CategoryCV},
		{"mlops", "Model serving on Kubernetes", "", CategoryMLOps},
		{"training", "Gradient accumulation tricks", "backpropagation study", CategoryTraining},
		{"multimodal", "A new vision-language benchmark suite", "vlm evaluation", CategoryMultimodal},
		{"nlp", "Corpus studies of natural language", "", CategoryNLP},
		{"default is nlp", "On the combinatorics of chess endgames", "", CategoryNLP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.title, tt.abstract))

			// Same inputs, same answer.
			assert.Equal(t, Categorize(tt.title, tt.abstract), Categorize(tt.title, tt.abstract))
		})
	}
}

func TestRelevanceBounds(t *testing.T) {
	// No keywords: base score only.
	assert.InDelta(t, 0.5, Relevance("chess endgames", "combinatorics"), 1e-9)

	// One high keyword.
	assert.InDelta(t, 0.6, Relevance("mlops pipelines", ""), 1e-9)

	// One medium keyword. "transformer" also matches nothing high.
	assert.InDelta(t, 0.55, Relevance("attention study", ""), 1e-9)

	// Keyword-stuffed text saturates both caps: 0.5 + 0.4 + 0.1.
	stuffed := "large language model llm rag retrieval augmented embedding mlops " +
		"deployment kubernetes inference serving optimization distributed training " +
		"transformer attention neural network deep learning machine learning artificial intelligence"
	assert.InDelta(t, 1.0, Relevance(stuffed, ""), 1e-9)
	assert.LessOrEqual(t, Relevance(stuffed, stuffed), 1.0)
}

func TestExtractTagsCap(t *testing.T) {
	stuffed := "transformer large language model retrieval augmented embedding mlops " +
		"kubernetes distributed optimization fine-tuning inference quantization prompt"

	tags := ExtractTags(stuffed, "")
	assert.Len(t, tags, maxPaperTags)

	// Rule order is preserved.
	assert.Equal(t, "transformers", tags[0])
	assert.Equal(t, "llm", tags[1])
}

func TestExtractFeedTagsCap(t *testing.T) {
	tags := extractFeedTags("gpt claude gemini llama mistral llm model training")
	assert.Len(t, tags, maxFeedTags)
	assert.Equal(t, []string{"GPT", "Claude", "Gemini", "Llama", "Mistral"}, tags)
}
