package driving

import (
	"context"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// QueryRequest describes a retrieval against one domain.
type QueryRequest struct {
	Domain string
	Text   string
	TopK   int

	// DocType restricts matches to one doc_type when set.
	DocType string
}

// QueryService retrieves chunks by semantic similarity.
type QueryService interface {
	// Query returns the best matching chunks, best first.
	Query(ctx context.Context, req QueryRequest) ([]domain.RetrievalDoc, error)
}
