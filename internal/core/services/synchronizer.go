package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
	"github.com/shelby-as-a-service/shelby/internal/retry"
)

// Vector store write operations reported in errors.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// SyncConfig controls batching and retries of vector store writes.
type SyncConfig struct {
	// UpsertBatchSize caps records per upsert call.
	UpsertBatchSize int

	// DeleteBatchSize caps IDs per delete call.
	DeleteBatchSize int

	// Concurrency is the number of upsert batches in flight.
	Concurrency int

	// Retry applies to each batch.
	Retry retry.Config
}

// DefaultSyncConfig returns 20-record upserts, 1000-ID deletes, four in flight.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		UpsertBatchSize: 20,
		DeleteBatchSize: 1000,
		Concurrency:     4,
		Retry:           retry.DefaultConfig(),
	}
}

// Synchronizer makes a vector store namespace agree with a set of records.
// Stale IDs are deleted before any upsert of the same document.
type Synchronizer struct {
	store driven.VectorStore
	cfg   SyncConfig
}

// NewSynchronizer creates a synchronizer. Zero config fields take their defaults.
func NewSynchronizer(store driven.VectorStore, cfg SyncConfig) *Synchronizer {
	def := DefaultSyncConfig()
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = def.UpsertBatchSize
	}
	if cfg.DeleteBatchSize <= 0 {
		cfg.DeleteBatchSize = def.DeleteBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Synchronizer{store: store, cfg: cfg}
}

// Sync deletes staleIDs and upserts records into namespace.
// Records of a document whose stale deletion failed are not upserted.
// Calling Sync twice with the same arguments leaves the same namespace state.
func (s *Synchronizer) Sync(ctx context.Context, namespace string, records []domain.VectorRecord, staleIDs []string) *domain.SyncResult {
	result := &domain.SyncResult{Namespace: namespace}
	if namespace == "" {
		err := fmt.Errorf("%w: empty namespace", domain.ErrInvalidInput)
		result.Errors = append(result.Errors, err)
		for _, r := range records {
			result.FailedIDs = append(result.FailedIDs, r.ID)
		}
		result.FailedDeleteIDs = append(result.FailedDeleteIDs, staleIDs...)
		return result
	}

	upserting := make(map[string]bool, len(records))
	for _, r := range records {
		upserting[r.ID] = true
	}
	stale := dedupe(staleIDs, upserting)

	blocked := s.deleteStale(ctx, namespace, stale, result)

	var pending []domain.VectorRecord
	for _, r := range records {
		if blocked[recordDocument(r)] {
			result.FailedIDs = append(result.FailedIDs, r.ID)
			continue
		}
		pending = append(pending, r)
	}
	if len(pending) < len(records) {
		logger.With("namespace", namespace).Warnf("Holding back %d records whose stale chunks could not be deleted",
			len(records)-len(pending))
	}

	s.upsert(ctx, namespace, pending, result)
	return result
}

// deleteStale removes stale IDs in batches and returns the documents that
// still have undeleted stale vectors.
func (s *Synchronizer) deleteStale(ctx context.Context, namespace string, ids []string, result *domain.SyncResult) map[string]bool {
	blocked := make(map[string]bool)
	log := logger.With("namespace", namespace, "op", OpDelete)
	for start := 0; start < len(ids); start += s.cfg.DeleteBatchSize {
		batch := ids[start:min(start+s.cfg.DeleteBatchSize, len(ids))]
		err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
			return s.store.Delete(ctx, namespace, batch)
		})
		if err != nil {
			log.Warnw("Deleting stale vectors failed", "ids", len(batch), "error", err)
			result.Errors = append(result.Errors, &domain.VectorStoreWriteError{
				Op: OpDelete, Namespace: namespace, IDs: batch, Err: err,
			})
			result.FailedDeleteIDs = append(result.FailedDeleteIDs, batch...)
			for _, id := range batch {
				blocked[idDocument(id)] = true
			}
			continue
		}
		result.DeletedIDs = append(result.DeletedIDs, batch...)
	}
	return blocked
}

// upsert writes records in concurrent batches. Confirmed IDs keep input order.
func (s *Synchronizer) upsert(ctx context.Context, namespace string, records []domain.VectorRecord, result *domain.SyncResult) {
	size := s.cfg.UpsertBatchSize
	batches := (len(records) + size - 1) / size
	confirmed := make([][]string, batches)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	log := logger.With("namespace", namespace, "op", OpUpsert)
	g.SetLimit(s.cfg.Concurrency)

	for b := 0; b < batches; b++ {
		batch := records[b*size : min((b+1)*size, len(records))]
		g.Go(func() error {
			err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
				err := s.store.Upsert(ctx, namespace, batch)
				if err != nil && domain.IsFatal(err) {
					return retry.Permanent(err)
				}
				return err
			})
			ids := make([]string, len(batch))
			for i, r := range batch {
				ids[i] = r.ID
			}
			if err != nil {
				log.Warnw("Upsert batch failed", "batch", b, "ids", len(ids), "error", err)
				mu.Lock()
				defer mu.Unlock()
				result.Errors = append(result.Errors, &domain.VectorStoreWriteError{
					Op: OpUpsert, Namespace: namespace, IDs: ids, Err: err,
				})
				result.FailedIDs = append(result.FailedIDs, ids...)
				return nil
			}
			confirmed[b] = ids
			return nil
		})
	}
	_ = g.Wait()

	for _, ids := range confirmed {
		result.UpsertedIDs = append(result.UpsertedIDs, ids...)
	}
}

// dedupe drops repeated IDs and IDs about to be upserted.
func dedupe(ids []string, skip map[string]bool) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] || skip[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func recordDocument(r domain.VectorRecord) string {
	if r.DocumentID != "" {
		return r.DocumentID
	}
	return idDocument(r.ID)
}

// idDocument recovers the document ID from a chunk ID.
func idDocument(id string) string {
	if doc, _, ok := domain.ParseChunkID(id); ok {
		return doc
	}
	return id
}
