package driven

import (
	"context"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// EmbeddingService generates dense vector embeddings from text.
//
// Implementations may include:
//   - OpenAI (text-embedding-ada-002, text-embedding-3-small)
//   - Ollama (nomic-embed-text, all-minilm)
type EmbeddingService interface {
	// EmbedBatch generates one embedding per text, in input order.
	// The batch must not exceed MaxBatchSize.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 768, 1536).
	Dimensions() int

	// MaxBatchSize is the largest number of texts accepted per call.
	MaxBatchSize() int

	// MaxItemTokens is the largest token length accepted for one text.
	MaxItemTokens() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// SparseEncoder produces lexical vectors for hybrid retrieval.
// This is an optional port; when nil only dense values are written.
type SparseEncoder interface {
	// EncodeDocuments fits on texts and returns one sparse vector per text.
	// The fit is local to this call.
	EncodeDocuments(texts []string) []*domain.SparseVector
}

// Tokenizer counts tokens the same way the embedding provider does.
type Tokenizer interface {
	// Count returns the number of tokens in text.
	Count(text string) int

	// Name identifies the encoding (e.g. "cl100k_base").
	Name() string
}
