// Package ollama provides an embedding service adapter using Ollama.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/httpapi"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL       = "http://localhost:11434"
	DefaultModel         = "nomic-embed-text"
	DefaultTimeout       = 30 * time.Second
	DefaultDimensions    = 768 // nomic-embed-text default
	DefaultMaxBatchSize  = 32
	DefaultMaxItemTokens = 2048 // Ollama's default context window
)

// Config holds configuration for the Ollama embedding service.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// Dimensions is the embedding vector size (model-dependent).
	Dimensions int

	// MaxBatchSize caps texts per request (default: 32).
	MaxBatchSize int
}

// EmbeddingService generates embeddings using Ollama.
type EmbeddingService struct {
	client     *httpapi.Client
	model      string
	dimensions int
	maxBatch   int
}

// embedRequest is the Ollama /api/embed request format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the Ollama /api/embed response format.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewEmbeddingService creates a new Ollama embedding service.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}

	return &EmbeddingService{
		client:     httpapi.NewClient(httpapi.Config{Provider: "ollama", BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   cfg.MaxBatchSize,
	}
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embedResponse
	if err := s.client.Do(ctx, "embed", http.MethodPost, "/api/embed", embedRequest{Model: s.model, Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// MaxBatchSize returns the largest number of texts per request.
func (s *EmbeddingService) MaxBatchSize() int {
	return s.maxBatch
}

// MaxItemTokens returns the context window applied to each text.
func (s *EmbeddingService) MaxItemTokens() int {
	return DefaultMaxItemTokens
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
// This is a lightweight check that validates connectivity without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.client.Do(ctx, "ping", http.MethodGet, "/api/tags", nil, nil)
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
