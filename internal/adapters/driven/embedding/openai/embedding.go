// Package openai provides an embedding service adapter using OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/httpapi"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL       = "https://api.openai.com/v1"
	DefaultModel         = "text-embedding-ada-002"
	DefaultTimeout       = 60 * time.Second
	DefaultMaxBatchSize  = 100
	DefaultMaxItemTokens = 8191
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-ada-002).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int

	// MaxBatchSize caps texts per request (default: 100).
	MaxBatchSize int
}

// EmbeddingService generates embeddings using OpenAI API.
type EmbeddingService struct {
	client     *httpapi.Client
	model      string
	dimensions int
	maxBatch   int
	// sendDimensions is set for models that accept a dimensions parameter.
	sendDimensions bool
}

// embeddingRequest is the OpenAI API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key: %w", domain.ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.Model]
		if !ok {
			dimensions = 1536
		}
	}

	return &EmbeddingService{
		client: httpapi.NewClient(httpapi.Config{
			Provider: "openai",
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
			Header:   http.Header{"Authorization": []string{"Bearer " + cfg.APIKey}},
		}),
		model:          cfg.Model,
		dimensions:     dimensions,
		maxBatch:       cfg.MaxBatchSize,
		sendDimensions: cfg.Dimensions > 0 && cfg.Model != "text-embedding-ada-002",
	}, nil
}

// EmbedBatch generates one embedding per text in a single request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > s.maxBatch {
		return nil, fmt.Errorf("openai: %w: batch of %d exceeds %d", domain.ErrInvalidInput, len(texts), s.maxBatch)
	}

	req := embeddingRequest{Model: s.model, Input: texts}
	if s.sendDimensions {
		req.Dimensions = s.dimensions
	}

	var resp embeddingResponse
	if err := s.client.Do(ctx, "embeddings", http.MethodPost, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	// Results are ordered by index, not by position in the response.
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) || embeddings[data.Index] != nil {
			return nil, fmt.Errorf("openai: unexpected embedding index %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// MaxBatchSize returns the largest number of texts per request.
func (s *EmbeddingService) MaxBatchSize() int {
	return s.maxBatch
}

// MaxItemTokens returns the model's input token limit.
func (s *EmbeddingService) MaxItemTokens() int {
	return DefaultMaxItemTokens
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the API key by listing models, without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.client.Do(ctx, "ping", http.MethodGet, "/models", nil, nil)
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
