package graphstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/er77/code-graph-rag-mcp-sub005/internal/graphmodel"
	"github.com/er77/code-graph-rag-mcp-sub005/internal/logging"
)

// BatchResult reports the outcome of a batch write.
type BatchResult struct {
	Processed int
	Failed    int
	Errors    []error
	ElapsedMs int64
}

// BatchOptions configures the elastic batch-size adapter.
type BatchOptions struct {
	InitialSize int
	TargetMs    int
	MaxSize     int
	MaxRetries  int
}

// DefaultBatchOptions mirrors the source's elastic-batch-size defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{InitialSize: 1000, TargetMs: 100, MaxSize: 5000, MaxRetries: 3}
}

// UpsertEntitiesBatch writes entities in elastically-sized transactional
// chunks, shrinking the chunk when a chunk exceeds the target duration
// and growing it (up to MaxSize) when chunks run comfortably under
// target. Each chunk is retried up to MaxRetries times with exponential
// backoff before counting its rows as failed.
func (s *Store) UpsertEntitiesBatch(ctx context.Context, entities []graphmodel.Entity, opts BatchOptions) (*BatchResult, error) {
	stop := logTimer("UpsertEntitiesBatch")
	defer stop()

	start := time.Now()
	result := &BatchResult{}
	size := opts.InitialSize
	if size <= 0 {
		size = DefaultBatchOptions().InitialSize
	}

	for offset := 0; offset < len(entities); {
		end := offset + size
		if end > len(entities) {
			end = len(entities)
		}
		chunk := entities[offset:end]

		chunkStart := time.Now()
		err := s.runWithRetry(ctx, opts.MaxRetries, func() error {
			return s.engine.Transaction(ctx, func(tx *sql.Tx) error {
				_, err := s.upsertEntitiesTx(ctx, tx, chunk)
				return err
			})
		})
		elapsed := time.Since(chunkStart)

		if err != nil {
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, err)
			logging.Get(logging.CategoryGraphStore).Warn("entity batch [%d:%d] failed after retries: %v", offset, end, err)
		} else {
			result.Processed += len(chunk)
		}

		size = adjustBatchSize(size, elapsed, opts)
		offset = end
	}

	result.ElapsedMs = time.Since(start).Milliseconds()
	return result, nil
}

// UpsertRelationshipsBatch mirrors UpsertEntitiesBatch for relationships.
func (s *Store) UpsertRelationshipsBatch(ctx context.Context, rels []graphmodel.Relationship, opts BatchOptions) (*BatchResult, error) {
	stop := logTimer("UpsertRelationshipsBatch")
	defer stop()

	start := time.Now()
	result := &BatchResult{}
	size := opts.InitialSize
	if size <= 0 {
		size = DefaultBatchOptions().InitialSize
	}

	for offset := 0; offset < len(rels); {
		end := offset + size
		if end > len(rels) {
			end = len(rels)
		}
		chunk := rels[offset:end]

		chunkStart := time.Now()
		err := s.runWithRetry(ctx, opts.MaxRetries, func() error {
			return s.engine.Transaction(ctx, func(tx *sql.Tx) error {
				_, err := s.upsertRelationshipsTx(ctx, tx, chunk)
				return err
			})
		})
		elapsed := time.Since(chunkStart)

		if err != nil {
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, err)
			logging.Get(logging.CategoryGraphStore).Warn("relationship batch [%d:%d] failed after retries: %v", offset, end, err)
		} else {
			result.Processed += len(chunk)
		}

		size = adjustBatchSize(size, elapsed, opts)
		offset = end
	}

	result.ElapsedMs = time.Since(start).Milliseconds()
	return result, nil
}

func adjustBatchSize(current int, elapsed time.Duration, opts BatchOptions) int {
	target := time.Duration(opts.TargetMs) * time.Millisecond
	if target <= 0 {
		target = 100 * time.Millisecond
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultBatchOptions().MaxSize
	}

	switch {
	case elapsed > target && current > 100:
		return current / 2
	case elapsed < target/2 && current < maxSize:
		grown := current * 2
		if grown > maxSize {
			grown = maxSize
		}
		return grown
	default:
		return current
	}
}

func (s *Store) runWithRetry(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = DefaultBatchOptions().MaxRetries
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	}, backoff.WithMaxTries(uint(maxRetries+1)), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return graphmodel.NewStorageError(err, "batch write failed after %d attempts", maxRetries+1)
	}
	return nil
}
