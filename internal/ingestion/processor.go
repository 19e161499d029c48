package ingestion

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/chunker"
	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/pkg/logger"
)

// Embedder turns texts into vectors, preserving order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Processor chunks documents, embeds the chunks and writes them to the
// vector store.
type Processor struct {
	chunkSize int
	overlap   int
	embedder  Embedder
	store     vector.Store
}

// Result summarizes one ingestion run.
type Result struct {
	Documents  int
	Chunks     int
	StoreCount int
}

func NewProcessor(chunkSize, overlap int, embedder Embedder, store vector.Store) *Processor {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 50
	}
	return &Processor{
		chunkSize: chunkSize,
		overlap:   overlap,
		embedder:  embedder,
		store:     store,
	}
}

// Process ingests docs. Each chunk carries the document metadata plus its
// position within the document.
func (p *Processor) Process(ctx context.Context, docs []Document) (Result, error) {
	var texts []string
	var metadatas []map[string]string

	for _, doc := range docs {
		chunks, err := chunker.Split(doc.Content, p.chunkSize, p.overlap)
		if err != nil {
			return Result{}, fmt.Errorf("chunk document %s: %w", doc.Metadata["source"], err)
		}

		for _, c := range chunks {
			meta := make(map[string]string, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["chunk_id"] = strconv.Itoa(c.Index)
			meta["total_chunks"] = strconv.Itoa(len(chunks))
			meta["chunk_size"] = strconv.Itoa(p.chunkSize)

			texts = append(texts, c.Text)
			metadatas = append(metadatas, meta)
		}
	}

	if len(texts) == 0 {
		logger.Warn("No chunks produced, nothing to ingest")
		return Result{Documents: len(docs)}, nil
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}

	vdocs := make([]vector.Document, len(texts))
	for i := range texts {
		vdocs[i] = vector.Document{
			Text:      texts[i],
			Embedding: embeddings[i],
			Metadata:  metadatas[i],
		}
	}

	if _, err := p.store.Add(ctx, vdocs); err != nil {
		return Result{}, fmt.Errorf("store chunks: %w", err)
	}

	count, err := p.store.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("count store: %w", err)
	}

	logger.Info("Ingestion complete",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(texts)),
		zap.Int("store_count", count),
	)

	return Result{
		Documents:  len(docs),
		Chunks:     len(texts),
		StoreCount: count,
	}, nil
}
