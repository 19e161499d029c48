// Package local is a file-backed vector store for single-node deployments.
// Records live in a bbolt database and searches scan the full index, which is
// fine for the few thousand chunks a portfolio site carries.
package local

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/pkg/logger"
)

var (
	recordsBucket = []byte("records")
	metaBucket    = []byte("meta")
	seqKey        = []byte("seq")
)

type Store struct {
	db *bbolt.DB
}

type record struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Open creates or reopens the store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init vector store buckets: %w", err)
	}

	logger.Info("Local vector store opened", zap.String("path", path))

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add indexes docs and returns their assigned IDs, doc_{n} in insertion
// order. Embeddings are stored as given; no normalization happens here.
func (s *Store) Add(ctx context.Context, docs []vector.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		meta := tx.Bucket(metaBucket)

		seq := readSeq(meta)
		for i, doc := range docs {
			id := fmt.Sprintf("doc_%d", seq)
			seq++

			rec := record{
				ID:        id,
				Text:      doc.Text,
				Embedding: doc.Embedding,
				Metadata:  doc.Metadata,
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record %s: %w", id, err)
			}
			if err := records.Put([]byte(id), data); err != nil {
				return err
			}
			ids[i] = id
		}

		return writeSeq(meta, seq)
	})
	if err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}

	logger.Debug("Documents indexed", zap.Int("count", len(docs)))

	return ids, nil
}

// Search returns the topK records nearest to embedding by cosine distance,
// closest first. An empty store yields an empty slice.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]vector.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []vector.SearchResult

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(_, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			results = append(results, vector.SearchResult{
				ID:       rec.ID,
				Text:     rec.Text,
				Metadata: rec.Metadata,
				Distance: vector.CosineDistance(embedding, rec.Embedding),
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(recordsBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// Reset drops all records and restarts ID assignment from doc_0.
func (s *Store) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(recordsBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(recordsBucket); err != nil {
			return err
		}
		return writeSeq(tx.Bucket(metaBucket), 0)
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	logger.Info("Vector store reset")

	return nil
}

func readSeq(meta *bbolt.Bucket) uint64 {
	v := meta.Get(seqKey)
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func writeSeq(meta *bbolt.Bucket, seq uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return meta.Put(seqKey, buf)
}
