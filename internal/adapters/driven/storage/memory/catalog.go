package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure Catalog implements the interface.
var _ driven.Catalog = (*Catalog)(nil)

// Catalog is an in-memory implementation of driven.Catalog.
// It mirrors the sqlite catalog's constraints and is used for tests and dry runs.
type Catalog struct {
	mu        sync.RWMutex
	domains   map[string]domain.Domain   // by name
	sources   map[string]domain.Source   // by ID
	documents map[string]domain.Document // by ID
	chunks    map[string][]domain.Chunk  // by document ID
}

// NewCatalog creates a new in-memory catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		domains:   make(map[string]domain.Domain),
		sources:   make(map[string]domain.Source),
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
	}
}

// SaveDomain creates or updates a domain by name.
func (c *Catalog) SaveDomain(_ context.Context, d *domain.Domain) error {
	if d.Name == "" {
		return fmt.Errorf("%w: domain name is required", domain.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if existing, ok := c.domains[d.Name]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	} else {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	stored := *d
	stored.Sources = nil
	c.domains[d.Name] = stored
	return nil
}

// GetDomain retrieves a domain by name.
func (c *Catalog) GetDomain(_ context.Context, name string) (*domain.Domain, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.domains[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	d.Sources = c.sourcesOf(d.ID)
	return &d, nil
}

// ListDomains returns all domains ordered by name, with their sources.
func (c *Catalog) ListDomains(_ context.Context) ([]domain.Domain, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]domain.Domain, 0, len(c.domains))
	for _, d := range c.domains {
		d.Sources = c.sourcesOf(d.ID)
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// DeleteDomain removes a domain once it has no sources.
func (c *Catalog) DeleteDomain(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.domains[name]
	if !ok {
		return domain.ErrNotFound
	}
	if len(c.sourcesOf(d.ID)) > 0 {
		return fmt.Errorf("domain %s: %w", name, domain.ErrHasChildren)
	}
	delete(c.domains, name)
	return nil
}

// SaveSource creates or updates a source by (domain, name).
func (c *Catalog) SaveSource(_ context.Context, s *domain.Source) error {
	if s.Name == "" || s.DomainID == "" {
		return fmt.Errorf("%w: source name and domain are required", domain.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasDomainID(s.DomainID) {
		return fmt.Errorf("domain %s: %w", s.DomainID, domain.ErrNotFound)
	}

	now := time.Now()
	if existing := c.findSource(s.DomainID, s.Name); existing != nil {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
		if s.LastUpdated.IsZero() {
			s.LastUpdated = existing.LastUpdated
		}
	} else {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	c.sources[s.ID] = *s
	return nil
}

// GetSource retrieves a source by domain and source name.
func (c *Catalog) GetSource(_ context.Context, domainName, sourceName string) (*domain.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.domains[domainName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s := c.findSource(d.ID, sourceName)
	if s == nil {
		return nil, domain.ErrNotFound
	}
	out := *s
	return &out, nil
}

// ListSources returns the sources of a domain ordered by name.
func (c *Catalog) ListSources(_ context.Context, domainName string) ([]domain.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.domains[domainName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.sourcesOf(d.ID), nil
}

// DeleteSource removes a source once it has no documents.
func (c *Catalog) DeleteSource(_ context.Context, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[sourceID]; !ok {
		return domain.ErrNotFound
	}
	for _, doc := range c.documents {
		if doc.SourceID == sourceID {
			return fmt.Errorf("source %s: %w", sourceID, domain.ErrHasChildren)
		}
	}
	delete(c.sources, sourceID)
	return nil
}

// MarkSourceUpdated records a fully successful ingestion pass.
func (c *Catalog) MarkSourceUpdated(_ context.Context, sourceID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sources[sourceID]
	if !ok {
		return domain.ErrNotFound
	}
	s.LastUpdated = at
	c.sources[sourceID] = s
	return nil
}

// ListDocuments returns the documents of a source ordered by URI, without chunks.
func (c *Catalog) ListDocuments(_ context.Context, sourceID string) ([]domain.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []domain.Document
	for _, doc := range c.documents {
		if doc.SourceID == sourceID {
			doc.Chunks = nil
			result = append(result, doc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].URI < result[j].URI })
	return result, nil
}

// GetPreviousChunkIDs returns the chunk IDs recorded for a document.
// An unknown document has none.
func (c *Catalog) GetPreviousChunkIDs(_ context.Context, documentID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunks := c.chunks[documentID]
	ids := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

// GetChunks returns the chunk rows of a document ordered by sequence.
func (c *Catalog) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyChunks(c.chunks[documentID]), nil
}

// ReplaceChunks upserts the document and replaces its chunk rows.
func (c *Catalog) ReplaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return &domain.CatalogTransactionError{DocumentURI: doc.URI, Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sources[doc.SourceID]; !ok {
		return &domain.CatalogTransactionError{
			DocumentURI: doc.URI,
			Err:         fmt.Errorf("source %s: %w", doc.SourceID, domain.ErrNotFound),
		}
	}

	seen := make(map[string]struct{}, len(chunks))
	for _, ch := range chunks {
		if _, dup := seen[ch.ID]; dup {
			return &domain.CatalogTransactionError{
				DocumentURI: doc.URI,
				Err:         fmt.Errorf("%w: duplicate chunk ID %s", domain.ErrAlreadyExists, ch.ID),
			}
		}
		seen[ch.ID] = struct{}{}
	}

	now := time.Now()
	stored := *doc
	stored.Chunks = nil
	if existing, ok := c.documents[doc.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	c.documents[doc.ID] = stored

	rows := copyChunks(chunks)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
	c.chunks[doc.ID] = rows
	return nil
}

// DeleteDocument removes a document and its chunk rows.
func (c *Catalog) DeleteDocument(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.documents, documentID)
	delete(c.chunks, documentID)
	return nil
}

// CountSource returns the number of documents and chunk rows of a source.
func (c *Catalog) CountSource(_ context.Context, sourceID string) (documents, chunks int, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, doc := range c.documents {
		if doc.SourceID == sourceID {
			documents++
			chunks += len(c.chunks[id])
		}
	}
	return documents, chunks, nil
}

// Close is a no-op for the memory catalog.
func (c *Catalog) Close() error {
	return nil
}

func (c *Catalog) sourcesOf(domainID string) []domain.Source {
	var result []domain.Source
	for _, s := range c.sources {
		if s.DomainID == domainID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (c *Catalog) findSource(domainID, name string) *domain.Source {
	for _, s := range c.sources {
		if s.DomainID == domainID && s.Name == name {
			return &s
		}
	}
	return nil
}

func (c *Catalog) hasDomainID(id string) bool {
	for _, d := range c.domains {
		if d.ID == id {
			return true
		}
	}
	return false
}

func copyChunks(src []domain.Chunk) []domain.Chunk {
	if len(src) == 0 {
		return nil
	}
	dst := make([]domain.Chunk, len(src))
	copy(dst, src)
	return dst
}
