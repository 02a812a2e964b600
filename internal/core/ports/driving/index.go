package driving

import (
	"context"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// IndexService manages the catalog of domains and sources.
type IndexService interface {
	// Apply creates or updates domains and their sources.
	Apply(ctx context.Context, domains []domain.Domain) error

	// List returns all domains with their sources.
	List(ctx context.Context) ([]domain.Domain, error)

	// Stats reports catalog and vector counts for a domain.
	Stats(ctx context.Context, domainName string) (*DomainStats, error)

	// ClearSource deletes a source's vectors and catalog rows bottom-up.
	ClearSource(ctx context.Context, domainName, sourceName string) []domain.ClearResult

	// ClearDomain clears every source of a domain, then the domain itself.
	ClearDomain(ctx context.Context, domainName string) []domain.ClearResult
}

// DomainStats summarises the indexed state of a domain.
type DomainStats struct {
	Domain    string
	Namespace string

	// Vectors is the namespace size summed over every vector store the
	// domain and its sources write to.
	Vectors int

	// Chunks is the number of catalog chunk rows across all sources.
	Chunks int

	Sources []SourceStats
}

// SourceStats summarises the indexed state of a source.
type SourceStats struct {
	Name        string
	Documents   int
	Chunks      int
	LastUpdated time.Time
}
