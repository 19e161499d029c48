// Package ingestion loads portfolio content into the vector store: markdown
// docs from disk plus blog posts and papers already in the database.
package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/storage/sqlite"
	"github.com/mlfolio/backend/pkg/logger"
)

// Document is raw content plus metadata, before chunking.
type Document struct {
	Content  string
	Metadata map[string]string
}

type docCategoryRule struct {
	substrings []string
	category   string
}

// Path-based category rules, first match wins.
var docCategoryRules = []docCategoryRule{
	{[]string{"journey"}, "journey"},
	{[]string{"technical", "architecture"}, "technical"},
	{[]string{"planning"}, "planning"},
	{[]string{"blog"}, "blog"},
}

func inferCategory(path string) string {
	for _, rule := range docCategoryRules {
		for _, sub := range rule.substrings {
			if strings.Contains(path, sub) {
				return rule.category
			}
		}
	}
	return "general"
}

// LoadMarkdownDir recursively loads every .md file under dir. A missing
// directory is logged and skipped, not an error: doc layout varies between
// checkouts.
func LoadMarkdownDir(dir string) ([]Document, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Warn("Document directory not found, skipping", zap.String("dir", dir))
		return nil, nil
	}

	var docs []Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read document",
				zap.String("path", path),
				zap.Error(err),
			)
			return nil
		}

		docs = append(docs, Document{
			Content: string(content),
			Metadata: map[string]string{
				"source":   path,
				"filename": d.Name(),
				"category": inferCategory(path),
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	logger.Info("Markdown documents loaded",
		zap.String("dir", dir),
		zap.Int("count", len(docs)),
	)

	return docs, nil
}

// LoadPapers renders stored papers and blog posts as markdown documents so
// the chatbot can cite them.
func LoadPapers(db *sqlite.Client) ([]Document, error) {
	papers, err := db.ListPapers("", 1000, 0)
	if err != nil {
		return nil, fmt.Errorf("load papers: %w", err)
	}

	docs := make([]Document, 0, len(papers))
	for _, p := range papers {
		content := fmt.Sprintf(`# %s

**Author:** %s
**Published:** %s
**Category:** %s
**Tags:** %s

## Content

%s

**Source:** Blog post from portfolio
**URL:** /blog/%s
`,
			p.Title,
			strings.Join(p.Authors, ", "),
			p.PublishedAt.Format("2006-01-02"),
			p.Category,
			strings.Join(p.Tags, ", "),
			p.Abstract,
			p.ID,
		)

		docs = append(docs, Document{
			Content: content,
			Metadata: map[string]string{
				"source":   "blog-" + p.ID,
				"category": "blog-post",
				"title":    p.Title,
			},
		})
	}

	logger.Info("Paper documents loaded", zap.Int("count", len(docs)))

	return docs, nil
}
