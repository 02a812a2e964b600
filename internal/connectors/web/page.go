package web

import (
	"context"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

var _ driven.Loader = (*PageLoader)(nil)

// PageLoader fetches the single page at the source URI.
type PageLoader struct {
	url   string
	fetch *fetcher
}

// NewPageLoader creates a single page loader.
func NewPageLoader(source domain.Source) (*PageLoader, error) {
	start, err := parseStart(source.URI)
	if err != nil {
		return nil, err
	}
	return &PageLoader{url: start.String(), fetch: newFetcher(0)}, nil
}

// PageBuilder adapts NewPageLoader to driven.LoaderBuilder.
func PageBuilder(source domain.Source) (driven.Loader, error) {
	l, err := NewPageLoader(source)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Kind returns the loader kind.
func (l *PageLoader) Kind() string { return KindPage }

// Validate is a no-op; the URL was checked on construction.
func (l *PageLoader) Validate(_ context.Context) error { return nil }

// Load fetches the page.
func (l *PageLoader) Load(ctx context.Context) ([]domain.RawDocument, error) {
	_, doc, err := l.fetch.fetch(ctx, l.url)
	if err != nil {
		return nil, err
	}
	return []domain.RawDocument{doc}, nil
}

// Close is a no-op.
func (l *PageLoader) Close() error { return nil }
