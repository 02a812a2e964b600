// Package ai provides factory functions for the embedding and vector store adapters.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/config/file"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/embedding/cached"
	ollamaembed "github.com/shelby-as-a-service/shelby/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/shelby-as-a-service/shelby/internal/adapters/driven/embedding/openai"
	vmemory "github.com/shelby-as-a-service/shelby/internal/adapters/driven/vectorstore/memory"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/vectorstore/pinecone"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/vectorstore/qdrant"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateEmbeddingService creates the embedding service selected by cfg.
func CreateEmbeddingService(cfg file.EmbeddingConfig) (driven.EmbeddingService, error) {
	switch cfg.Provider {
	case "ollama":
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			Dimensions:   cfg.Dimensions,
			MaxBatchSize: cfg.BatchSize,
		}), nil

	case "openai":
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:       file.Secret(cfg.APIKeyEnv),
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			Dimensions:   cfg.Dimensions,
			MaxBatchSize: cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, cfg.Provider)
	}
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(ctx context.Context, cfg file.EmbeddingConfig) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("embedding service %s unreachable: %w", cfg.Provider, err)
	}
	return svc, nil
}

// WithQueryCache wraps svc in an LRU cache. A non-positive size returns svc unchanged.
func WithQueryCache(svc driven.EmbeddingService, size int) (driven.EmbeddingService, error) {
	if size <= 0 {
		return svc, nil
	}
	c, err := cached.New(svc, size)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateVectorStore creates the named vector store. dimensions is the
// embedding size, used by stores that create collections.
func CreateVectorStore(name string, cfg file.VectorStoreConfig, dimensions int) (driven.VectorStore, error) {
	switch cfg.Provider {
	case "pinecone":
		store, err := pinecone.New(pinecone.Config{
			APIKey:    file.Secret(cfg.APIKeyEnv),
			IndexHost: cfg.IndexHost,
		})
		if err != nil {
			return nil, fmt.Errorf("vector store %s: %w", name, err)
		}
		return store, nil

	case "qdrant":
		store, err := qdrant.New(qdrant.Config{
			URL:              cfg.URL,
			APIKey:           file.Secret(cfg.APIKeyEnv),
			Dimensions:       dimensions,
			CollectionPrefix: cfg.CollectionPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("vector store %s: %w", name, err)
		}
		return store, nil

	case "memory":
		return vmemory.New(dimensions), nil

	default:
		return nil, fmt.Errorf("%w: vector store %s provider %q", domain.ErrUnsupportedType, name, cfg.Provider)
	}
}

// StoreRegistry creates configured vector stores on first use and keeps them
// for the life of the process.
type StoreRegistry struct {
	configs     map[string]file.VectorStoreConfig
	defaultName string
	dimensions  int

	mu     sync.Mutex
	stores map[string]driven.VectorStore
}

// NewStoreRegistry creates a registry over the configured stores.
// defaultName is used for an empty database name.
func NewStoreRegistry(configs map[string]file.VectorStoreConfig, defaultName string, dimensions int) *StoreRegistry {
	return &StoreRegistry{
		configs:     configs,
		defaultName: defaultName,
		dimensions:  dimensions,
		stores:      make(map[string]driven.VectorStore),
	}
}

// Resolve returns the store named database. Its signature matches
// services.StoreResolver.
func (r *StoreRegistry) Resolve(database string) (driven.VectorStore, error) {
	name := database
	if name == "" {
		name = r.defaultName
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no vector store named and no default configured", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.stores[name]; ok {
		return store, nil
	}
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("vector store %s: %w", name, domain.ErrNotFound)
	}
	store, err := CreateVectorStore(name, cfg, r.dimensions)
	if err != nil {
		return nil, err
	}
	logger.Debug("Opened vector store %s (%s)", name, cfg.Provider)
	r.stores[name] = store
	return store, nil
}

// Close releases every opened store.
func (r *StoreRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, store := range r.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing vector store %s: %w", name, err))
		}
	}
	r.stores = make(map[string]driven.VectorStore)
	return errors.Join(errs...)
}
