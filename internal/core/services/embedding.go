package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
	"github.com/shelby-as-a-service/shelby/internal/retry"
)

// EmbeddingConfig controls batching and retries of embedding calls.
type EmbeddingConfig struct {
	// BatchSize caps texts per provider call. Zero uses the provider maximum.
	BatchSize int

	// Concurrency is the number of batches in flight.
	Concurrency int

	// Retry applies to each batch.
	Retry retry.Config
}

// DefaultEmbeddingConfig returns provider-sized batches, two in flight.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Concurrency: 2,
		Retry:       retry.DefaultConfig(),
	}
}

// EmbedItem is one text to embed, keyed by the chunk ID it belongs to.
type EmbedItem struct {
	ID   string
	Text string
}

// EmbedResult holds per-item outcomes of Embed.
type EmbedResult struct {
	// Vectors is aligned with the input; nil where the item failed.
	Vectors [][]float32

	// Failures lists every item that was not embedded.
	Failures []domain.Failure

	// Errors holds one error per failed batch or oversized item.
	Errors []error
}

// Failed reports whether item i has no vector.
func (r *EmbedResult) Failed(i int) bool {
	return r.Vectors[i] == nil
}

// EmbeddingOrchestrator batches texts for an embedding provider.
// Output order always matches input order.
type EmbeddingOrchestrator struct {
	service   driven.EmbeddingService
	tokenizer driven.Tokenizer
	cfg       EmbeddingConfig
}

// NewEmbeddingOrchestrator creates an orchestrator. The tokenizer is used to
// reject items above the provider's per-item token limit; nil disables the check.
func NewEmbeddingOrchestrator(service driven.EmbeddingService, tokenizer driven.Tokenizer, cfg EmbeddingConfig) *EmbeddingOrchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &EmbeddingOrchestrator{service: service, tokenizer: tokenizer, cfg: cfg}
}

// Service returns the wrapped provider.
func (o *EmbeddingOrchestrator) Service() driven.EmbeddingService {
	return o.service
}

// batchSize returns the effective number of texts per call.
func (o *EmbeddingOrchestrator) batchSize() int {
	size := o.service.MaxBatchSize()
	if o.cfg.BatchSize > 0 && (size <= 0 || o.cfg.BatchSize < size) {
		size = o.cfg.BatchSize
	}
	if size <= 0 {
		size = 1
	}
	return size
}

// EmbedBatch embeds every text or fails as a whole.
func (o *EmbeddingOrchestrator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	items := make([]EmbedItem, len(texts))
	for i, t := range texts {
		items[i] = EmbedItem{ID: fmt.Sprintf("%d", i), Text: t}
	}
	res := o.Embed(ctx, items)
	if len(res.Errors) > 0 {
		return nil, errors.Join(res.Errors...)
	}
	return res.Vectors, nil
}

// EmbedQuery embeds a single query text.
func (o *EmbeddingOrchestrator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Embed embeds items in provider-sized batches. Oversized items and failed
// batches are reported per item; the remaining items are unaffected.
func (o *EmbeddingOrchestrator) Embed(ctx context.Context, items []EmbedItem) *EmbedResult {
	res := &EmbedResult{Vectors: make([][]float32, len(items))}
	if len(items) == 0 {
		return res
	}

	eligible := make([]int, 0, len(items))
	limit := o.service.MaxItemTokens()
	for i, item := range items {
		if o.tokenizer != nil && limit > 0 {
			if n := o.tokenizer.Count(item.Text); n > limit {
				err := fmt.Errorf("%w: %s has %d tokens, limit %d", domain.ErrChunkTooLarge, item.ID, n, limit)
				logger.Warn("Skipping oversized chunk %s (%d tokens)", item.ID, n)
				res.Failures = append(res.Failures, domain.Failure{Stage: domain.StageEmbed, ID: item.ID, Reason: err.Error()})
				res.Errors = append(res.Errors, err)
				continue
			}
		}
		eligible = append(eligible, i)
	}

	size := o.batchSize()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.cfg.Concurrency)

	for batch, start := 0, 0; start < len(eligible); batch, start = batch+1, start+size {
		end := min(start+size, len(eligible))
		indices := eligible[start:end]
		g.Go(func() error {
			vectors, err := o.embedIndices(ctx, items, indices)
			if err != nil {
				ids := make([]string, len(indices))
				for k, idx := range indices {
					ids[k] = items[idx].ID
				}
				batchErr := &domain.EmbeddingBatchError{Batch: batch, IDs: ids, Err: err}
				logger.Warn("Embedding batch %d failed: %v", batch, err)

				mu.Lock()
				defer mu.Unlock()
				res.Errors = append(res.Errors, batchErr)
				for _, id := range ids {
					res.Failures = append(res.Failures, domain.Failure{Stage: domain.StageEmbed, ID: id, Reason: err.Error()})
				}
				return nil
			}
			// Each batch owns distinct indices.
			for k, idx := range indices {
				res.Vectors[idx] = vectors[k]
			}
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (o *EmbeddingOrchestrator) embedIndices(ctx context.Context, items []EmbedItem, indices []int) ([][]float32, error) {
	texts := make([]string, len(indices))
	for k, idx := range indices {
		texts[k] = items[idx].Text
	}
	dims := o.service.Dimensions()

	return retry.DoWithResult(ctx, o.cfg.Retry, func(ctx context.Context) ([][]float32, error) {
		vectors, err := o.service.EmbedBatch(ctx, texts)
		if err != nil {
			if domain.IsFatal(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for _, v := range vectors {
			if dims > 0 && len(v) != dims {
				return nil, retry.Permanent(fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(v), dims))
			}
		}
		return vectors, nil
	})
}
