// Package milvus backs the vector store with a Milvus (or Zilliz Cloud)
// collection for deployments that outgrow the local file store.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/pkg/logger"
)

type Store struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// New connects to endpoint and ensures the collection exists with the
// expected schema and index.
func New(ctx context.Context, endpoint, collectionName string, vectorDim int) (*Store, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create milvus client: %w", err)
	}

	s := &Store{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}

	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("Milvus vector store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    "Portfolio document embeddings",
		Fields: []*entity.Field{
			{
				Name:       "doc_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(s.vectorDim),
				},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:     "metadata",
				DataType: entity.FieldTypeJSON,
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", s.collectionName))

	return nil
}

// Add inserts docs with doc_{n} IDs continuing from the current row count.
func (s *Store) Add(ctx context.Context, docs []vector.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	base, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	texts := make([]string, len(docs))
	metadatas := make([][]byte, len(docs))

	for i, doc := range docs {
		ids[i] = fmt.Sprintf("doc_%d", base+i)
		embeddings[i] = doc.Embedding
		texts[i] = doc.Text

		meta := doc.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata for %s: %w", ids[i], err)
		}
		metadatas[i] = data
	}

	_, err = s.client.Insert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar("doc_id", ids),
		entity.NewColumnFloatVector("embedding", s.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnJSONBytes("metadata", metadatas),
	)
	if err != nil {
		return nil, fmt.Errorf("insert documents: %w", err)
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	logger.Info("Documents inserted into vector DB", zap.Int("count", len(docs)))

	return ids, nil
}

func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]vector.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		"",
		[]string{"doc_id", "text", "metadata"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var results []vector.SearchResult
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn("doc_id")
		textCol := sr.Fields.GetColumn("text")
		metaCol := sr.Fields.GetColumn("metadata")

		for i := 0; i < sr.ResultCount; i++ {
			id, _ := idCol.Get(i)
			text, _ := textCol.Get(i)

			metadata := map[string]string{}
			if metaCol != nil {
				if raw, err := metaCol.Get(i); err == nil {
					if data, ok := raw.([]byte); ok {
						json.Unmarshal(data, &metadata)
					}
				}
			}

			// Milvus reports COSINE similarity; convert to distance.
			results = append(results, vector.SearchResult{
				ID:       id.(string),
				Text:     text.(string),
				Metadata: metadata,
				Distance: 1 - sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collectionName)
	if err != nil {
		return 0, fmt.Errorf("collection statistics: %w", err)
	}

	count, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("parse row count %q: %w", stats["row_count"], err)
	}
	return count, nil
}

// Reset drops and recreates the collection.
func (s *Store) Reset(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if has {
		if err := s.client.DropCollection(ctx, s.collectionName); err != nil {
			return fmt.Errorf("drop collection: %w", err)
		}
	}
	return s.ensureCollection(ctx)
}
