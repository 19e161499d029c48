package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mlfolio/backend/pkg/errs"
)

// Chunk is a bounded slice of a document's text, the unit of embedding and
// retrieval.
type Chunk struct {
	Text  string
	Index int
}

var (
	imageSyntaxRe = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// CleanText strips markdown image syntax and HTML tags and collapses
// whitespace runs into single spaces.
func CleanText(text string) string {
	text = imageSyntaxRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Split cuts text into overlapping windows of at most size words. Successive
// windows start size-overlap words apart; the last window holds the
// remainder. Text of size words or fewer yields a single chunk. Whitespace-only
// input yields no chunks.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", errs.ErrValidation, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, size)", errs.ErrValidation, overlap)
	}

	text = CleanText(text)
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	if len(words) <= size {
		return []Chunk{{Text: text, Index: 0}}, nil
	}

	step := size - overlap
	var chunks []Chunk
	for start := 0; ; start += step {
		end := start + size
		if end >= len(words) {
			chunks = append(chunks, Chunk{
				Text:  strings.Join(words[start:], " "),
				Index: len(chunks),
			})
			break
		}
		chunks = append(chunks, Chunk{
			Text:  strings.Join(words[start:end], " "),
			Index: len(chunks),
		})
	}

	return chunks, nil
}

// boundaryWindow is how far around the target cut SplitBounded searches for a
// paragraph or sentence break before falling back to a hard cut.
const boundaryWindow = 100

var sentenceBreaks = []string{". ", "! ", "? "}

// SplitBounded cuts text into character windows of roughly size characters,
// preferring to break at a paragraph or sentence boundary within
// boundaryWindow characters of the target cut. Used for PDF text, where word
// boundaries alone produce mid-sentence cuts.
func SplitBounded(text string, size, overlap int) []Chunk {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + size

		if end < len(text) {
			end = findBreak(text, end)
			if end <= start {
				end = start + size
			}
		} else {
			end = len(text)
		}

		part := strings.TrimSpace(text[start:end])
		if part != "" {
			chunks = append(chunks, Chunk{Text: part, Index: len(chunks)})
		}

		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

func findBreak(text string, target int) int {
	lo := target - boundaryWindow
	if lo < 0 {
		lo = 0
	}
	hi := target + boundaryWindow
	if hi > len(text) {
		hi = len(text)
	}

	if i := strings.Index(text[lo:hi], "\n\n"); i != -1 {
		return lo + i
	}
	for _, punct := range sentenceBreaks {
		if i := strings.Index(text[lo:hi], punct); i != -1 {
			return lo + i + len(punct)
		}
	}
	return target
}
