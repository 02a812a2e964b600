package web

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// Sitemap defaults.
const (
	DefaultSitemapRate = 4.0

	// maxSitemapDepth bounds nested sitemap indexes.
	maxSitemapDepth = 3

	// sitemapFetchers is the number of pages fetched concurrently.
	sitemapFetchers = 4
)

var _ driven.Loader = (*SitemapLoader)(nil)

// SitemapLoader fetches every page listed in a sitemap.
type SitemapLoader struct {
	sitemapURL string
	filter     string
	fetch      *fetcher
}

// NewSitemapLoader creates a sitemap loader. The sitemap location comes from
// sitemap_url, then from a source URI ending in .xml, then <uri>/sitemap.xml.
func NewSitemapLoader(source domain.Source) (*SitemapLoader, error) {
	location := source.Loader.Get("sitemap_url", "")
	if location == "" {
		location = source.URI
		if !strings.HasSuffix(strings.ToLower(location), ".xml") {
			location = strings.TrimSuffix(location, "/") + "/sitemap.xml"
		}
	}
	start, err := parseStart(location)
	if err != nil {
		return nil, err
	}
	rps, err := rateOption(source.Loader, DefaultSitemapRate)
	if err != nil {
		return nil, err
	}
	return &SitemapLoader{
		sitemapURL: start.String(),
		filter:     source.Loader.Get("filter_url", ""),
		fetch:      newFetcher(rps),
	}, nil
}

// SitemapBuilder adapts NewSitemapLoader to driven.LoaderBuilder.
func SitemapBuilder(source domain.Source) (driven.Loader, error) {
	l, err := NewSitemapLoader(source)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Kind returns the loader kind.
func (l *SitemapLoader) Kind() string { return KindSitemap }

// Validate is a no-op; the location was checked on construction.
func (l *SitemapLoader) Validate(_ context.Context) error { return nil }

// Close is a no-op.
func (l *SitemapLoader) Close() error { return nil }

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapEntry `xml:"url"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

// Load reads the sitemap and fetches the listed pages that contain filter_url.
// Pages that are gone are skipped. Any other failure fails the load.
func (l *SitemapLoader) Load(ctx context.Context) ([]domain.RawDocument, error) {
	entries, err := l.entries(ctx, l.sitemapURL, 0)
	if err != nil {
		return nil, err
	}

	var selected []sitemapEntry
	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.Loc] || (l.filter != "" && !strings.Contains(e.Loc, l.filter)) {
			continue
		}
		seen[e.Loc] = true
		selected = append(selected, e)
	}
	logger.Debug("Sitemap %s lists %d pages, %d selected", l.sitemapURL, len(entries), len(selected))

	results := make([]*domain.RawDocument, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sitemapFetchers)
	for i, e := range selected {
		g.Go(func() error {
			_, doc, err := l.fetch.fetch(gctx, e.Loc)
			if err != nil {
				if isGone(err) {
					logger.Debug("Skipping missing page %s", e.Loc)
					return nil
				}
				return err
			}
			if doc.ModifiedAt.IsZero() {
				doc.ModifiedAt = parseLastMod(e.LastMod)
			}
			results[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make([]domain.RawDocument, 0, len(results))
	for _, d := range results {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs, nil
}

// entries returns the page entries of a sitemap, following sitemap indexes.
func (l *SitemapLoader) entries(ctx context.Context, location string, depth int) ([]sitemapEntry, error) {
	page, err := l.fetch.client.Get(ctx, "sitemap", location, MaxPageSize)
	if err != nil {
		return nil, err
	}
	var doc sitemapDoc
	if err := xml.Unmarshal(page.Body, &doc); err != nil {
		return nil, fmt.Errorf("%w: sitemap %s: %v", domain.ErrInvalidInput, location, err)
	}
	if root := doc.XMLName.Local; root != "urlset" && root != "sitemapindex" {
		return nil, fmt.Errorf("%w: %s is not a sitemap", domain.ErrInvalidInput, location)
	}

	var out []sitemapEntry
	for _, u := range doc.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			out = append(out, sitemapEntry{Loc: loc, LastMod: strings.TrimSpace(u.LastMod)})
		}
	}
	if len(doc.Sitemaps) == 0 {
		return out, nil
	}
	if depth >= maxSitemapDepth {
		logger.Warn("Ignoring sitemaps nested deeper than %d below %s", maxSitemapDepth, l.sitemapURL)
		return out, nil
	}
	for _, s := range doc.Sitemaps {
		loc := strings.TrimSpace(s.Loc)
		if loc == "" {
			continue
		}
		nested, err := l.entries(ctx, loc, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// parseLastMod accepts the W3C datetime forms used by sitemaps.
func parseLastMod(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
