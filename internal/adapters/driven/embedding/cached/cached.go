// Package cached decorates an embedding service with an LRU cache keyed by
// model and text. Query embedding uses it so repeated questions skip the provider.
package cached

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultSize is the default number of cached embeddings.
// At 1536 dimensions * 4 bytes * 1000 entries that is about 6MB.
const DefaultSize = 1000

// EmbeddingService wraps another service with an LRU cache.
type EmbeddingService struct {
	inner driven.EmbeddingService
	cache *lru.Cache[string, []float32]
}

// New creates a cached service. A non-positive size uses DefaultSize.
func New(inner driven.EmbeddingService, size int) (*EmbeddingService, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &EmbeddingService{inner: inner, cache: cache}, nil
}

func (s *EmbeddingService) key(text string) string {
	sum := sha256.Sum256([]byte(s.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// EmbedBatch serves cached texts from memory and sends the rest in one call.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		if vec, ok := s.cache.Get(s.key(text)); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := s.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	for j, idx := range missIdx {
		results[idx] = vectors[j]
		s.cache.Add(s.key(texts[idx]), vectors[j])
	}
	return results, nil
}

// Len returns the number of cached embeddings.
func (s *EmbeddingService) Len() int { return s.cache.Len() }

// Dimensions passes through to the wrapped service.
func (s *EmbeddingService) Dimensions() int { return s.inner.Dimensions() }

// MaxBatchSize passes through to the wrapped service.
func (s *EmbeddingService) MaxBatchSize() int { return s.inner.MaxBatchSize() }

// MaxItemTokens passes through to the wrapped service.
func (s *EmbeddingService) MaxItemTokens() int { return s.inner.MaxItemTokens() }

// ModelName passes through to the wrapped service.
func (s *EmbeddingService) ModelName() string { return s.inner.ModelName() }

// Ping passes through to the wrapped service.
func (s *EmbeddingService) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

// Close closes the wrapped service.
func (s *EmbeddingService) Close() error { return s.inner.Close() }
