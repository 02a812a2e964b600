package driven

import (
	"context"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// VectorStore is a namespaced vector database.
// A namespace is created implicitly on the first upsert.
//
// Implementations may include:
//   - Pinecone (REST data plane)
//   - Qdrant (REST, one collection per namespace)
//   - In-memory (tests and dry runs)
type VectorStore interface {
	// Upsert inserts or replaces records by ID.
	// Callers bound the batch size.
	Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) error

	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error

	// Query returns the closest matches, best first.
	Query(ctx context.Context, namespace string, query domain.VectorQuery) ([]domain.VectorMatch, error)

	// Stats reports the namespace size. A missing namespace reports zero.
	Stats(ctx context.Context, namespace string) (domain.NamespaceStats, error)

	// DeleteNamespace removes every record in the namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Close releases resources.
	Close() error
}
