package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// DefaultTopK is the number of matches returned when a request sets none.
const DefaultTopK = 5

// QueryService embeds a query and retrieves the closest chunks of a domain.
type QueryService struct {
	catalog  driven.Catalog
	embedder *EmbeddingOrchestrator
	stores   StoreResolver
}

// NewQueryService creates a query service.
func NewQueryService(catalog driven.Catalog, embedder *EmbeddingOrchestrator, stores StoreResolver) *QueryService {
	return &QueryService{catalog: catalog, embedder: embedder, stores: stores}
}

// Query returns the best matching chunks of a domain, best first.
func (s *QueryService) Query(ctx context.Context, req driving.QueryRequest) ([]domain.RetrievalDoc, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	d, err := s.catalog.GetDomain(ctx, req.Domain)
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", req.Domain, err)
	}
	store, err := s.stores(d.Database)
	if err != nil {
		return nil, err
	}

	// Chunks are embedded lowercased; queries follow suit.
	vector, err := s.embedder.EmbedQuery(ctx, strings.ToLower(text))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	q := domain.VectorQuery{Vector: vector, TopK: topK}
	if req.DocType != "" {
		q.Filter = map[string]string{domain.MetaDocType: req.DocType}
	}
	matches, err := store.Query(ctx, d.Namespace(), q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", d.Namespace(), err)
	}

	docs := make([]domain.RetrievalDoc, 0, len(matches))
	for i, m := range matches {
		docs = append(docs, domain.RetrievalDoc{
			ChunkID:    m.ID,
			Content:    m.Metadata[domain.MetaContent],
			Title:      m.Metadata[domain.MetaTitle],
			URI:        m.Metadata[domain.MetaURI],
			DocType:    m.Metadata[domain.MetaDocType],
			Score:      m.Score,
			Rank:       i + 1,
			DocumentID: documentOf(m),
			SourceName: m.Metadata[domain.MetaSourceName],
			DomainName: d.Name,
		})
	}
	return docs, nil
}

func documentOf(m domain.VectorMatch) string {
	if id := m.Metadata[domain.MetaDocumentID]; id != "" {
		return id
	}
	return idDocument(m.ID)
}
