package web

import (
	"context"
	"net/url"
	"strings"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
	htmlnorm "github.com/shelby-as-a-service/shelby/internal/normalisers/html"
)

// Crawl defaults.
const (
	DefaultMaxDepth      = 2
	DefaultMaxPages      = 200
	DefaultRecursiveRate = 2.0
)

var _ driven.Loader = (*RecursiveLoader)(nil)

// RecursiveLoader crawls links below the source URI breadth first.
// Only URLs that start with the source URI are followed.
type RecursiveLoader struct {
	start    *url.URL
	prefix   string
	maxDepth int
	maxPages int
	exclude  []string
	fetch    *fetcher
}

// NewRecursiveLoader creates a crawler from the source URI and its
// max_depth, max_pages, rate and exclude options.
func NewRecursiveLoader(source domain.Source) (*RecursiveLoader, error) {
	start, err := parseStart(source.URI)
	if err != nil {
		return nil, err
	}
	maxDepth, err := intOption(source.Loader, "max_depth", DefaultMaxDepth)
	if err != nil {
		return nil, err
	}
	maxPages, err := intOption(source.Loader, "max_pages", DefaultMaxPages)
	if err != nil {
		return nil, err
	}
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}
	rps, err := rateOption(source.Loader, DefaultRecursiveRate)
	if err != nil {
		return nil, err
	}

	var exclude []string
	for _, p := range strings.Split(source.Loader.Get("exclude", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			exclude = append(exclude, p)
		}
	}

	return &RecursiveLoader{
		start:    start,
		prefix:   start.String(),
		maxDepth: maxDepth,
		maxPages: maxPages,
		exclude:  exclude,
		fetch:    newFetcher(rps),
	}, nil
}

// RecursiveBuilder adapts NewRecursiveLoader to driven.LoaderBuilder.
func RecursiveBuilder(source domain.Source) (driven.Loader, error) {
	l, err := NewRecursiveLoader(source)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Kind returns the loader kind.
func (l *RecursiveLoader) Kind() string { return KindRecursive }

// Validate is a no-op; options were checked on construction.
func (l *RecursiveLoader) Validate(_ context.Context) error { return nil }

// Close is a no-op.
func (l *RecursiveLoader) Close() error { return nil }

type crawlItem struct {
	url   string
	depth int
}

// Load crawls from the start page. A failing start page fails the load.
// Missing linked pages are skipped; any other failure aborts the crawl so
// that a partial result never prunes healthy documents.
func (l *RecursiveLoader) Load(ctx context.Context) ([]domain.RawDocument, error) {
	queue := []crawlItem{{url: l.prefix}}
	seen := map[string]bool{l.prefix: true}
	var docs []domain.RawDocument

	for len(queue) > 0 && len(docs) < l.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := queue[0]
		queue = queue[1:]

		page, doc, err := l.fetch.fetch(ctx, item.url)
		if err != nil {
			if item.depth > 0 && isGone(err) {
				logger.Debug("Skipping missing page %s", item.url)
				continue
			}
			return nil, err
		}
		doc.Metadata["depth"] = item.depth
		docs = append(docs, doc)

		if item.depth >= l.maxDepth || doc.MIMEType != "text/html" {
			continue
		}
		base, err := url.Parse(page.URL)
		if err != nil {
			continue
		}
		for _, link := range htmlnorm.ExtractLinks(page.Body, base) {
			if seen[link] || !l.follow(link) {
				continue
			}
			seen[link] = true
			queue = append(queue, crawlItem{url: link, depth: item.depth + 1})
		}
	}

	logger.Debug("Crawled %d pages from %s", len(docs), l.prefix)
	return docs, nil
}

// follow reports whether a link is inside the crawl scope.
func (l *RecursiveLoader) follow(link string) bool {
	if !strings.HasPrefix(link, l.prefix) {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	for _, p := range l.exclude {
		if strings.HasPrefix(u.Path, p) {
			return false
		}
	}
	return true
}
