// Package jobs persists background job records so that job status survives
// process restarts.
package jobs

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/pkg/errs"
	"github.com/mlfolio/backend/pkg/logger"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CanTransition reports whether moving from s to next is a legal step.
// Completed and failed are terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Store is a bbolt-backed map of job ID to job record. T must marshal to
// JSON.
type Store[T any] struct {
	db     *bbolt.DB
	bucket []byte
}

func Open[T any](path, bucket string) (*Store[T], error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	name := []byte(bucket)
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init job bucket %s: %w", bucket, err)
	}

	logger.Info("Job store opened", zap.String("path", path), zap.String("bucket", bucket))

	return &Store[T]{db: db, bucket: name}, nil
}

func (s *Store[T]) Close() error {
	return s.db.Close()
}

func (s *Store[T]) Put(id string, job T) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", id, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("store job %s: %w", id, err)
	}
	return nil
}

func (s *Store[T]) Get(id string) (T, error) {
	var job T
	var data []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(id))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return job, fmt.Errorf("load job %s: %w", id, err)
	}
	if data == nil {
		return job, fmt.Errorf("%w: job %s", errs.ErrNotFound, id)
	}

	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return job, nil
}

// List returns every stored job in key order.
func (s *Store[T]) List() ([]T, error) {
	var out []T

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, v []byte) error {
			var job T
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("unmarshal job: %w", err)
			}
			out = append(out, job)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}
