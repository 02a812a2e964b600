package driven

import (
	"context"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// Catalog persists domains, sources, documents and chunk rows.
// The handle is passed explicitly; its owner controls open and close.
type Catalog interface {
	// === Domains ===

	// SaveDomain creates or updates a domain by name.
	SaveDomain(ctx context.Context, d *domain.Domain) error

	// GetDomain retrieves a domain by name.
	// Returns domain.ErrNotFound if absent.
	GetDomain(ctx context.Context, name string) (*domain.Domain, error)

	// ListDomains returns all domains ordered by name.
	ListDomains(ctx context.Context) ([]domain.Domain, error)

	// DeleteDomain removes a domain. Fails with domain.ErrHasChildren while sources remain.
	DeleteDomain(ctx context.Context, name string) error

	// === Sources ===

	// SaveSource creates or updates a source by (domain, name).
	SaveSource(ctx context.Context, s *domain.Source) error

	// GetSource retrieves a source by domain and name.
	GetSource(ctx context.Context, domainName, sourceName string) (*domain.Source, error)

	// ListSources returns the sources of a domain ordered by name.
	ListSources(ctx context.Context, domainName string) ([]domain.Source, error)

	// DeleteSource removes a source. Fails with domain.ErrHasChildren while documents remain.
	DeleteSource(ctx context.Context, sourceID string) error

	// MarkSourceUpdated records a fully successful ingestion pass.
	MarkSourceUpdated(ctx context.Context, sourceID string, at time.Time) error

	// === Documents and chunks ===

	// ListDocuments returns the documents of a source without chunks.
	ListDocuments(ctx context.Context, sourceID string) ([]domain.Document, error)

	// GetPreviousChunkIDs returns the chunk IDs currently recorded for a document.
	GetPreviousChunkIDs(ctx context.Context, documentID string) ([]string, error)

	// GetChunks returns the chunk rows of a document ordered by sequence.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// ReplaceChunks upserts the document and replaces its chunk rows atomically.
	// Either all new rows are written and old ones removed, or nothing changes.
	ReplaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// DeleteDocument removes a document and its chunk rows.
	DeleteDocument(ctx context.Context, documentID string) error

	// CountSource returns the number of documents and chunk rows of a source.
	CountSource(ctx context.Context, sourceID string) (documents, chunks int, err error)

	// Close releases resources.
	Close() error
}
