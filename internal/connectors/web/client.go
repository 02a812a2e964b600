// Package web provides loaders that fetch documents over HTTP: a single page,
// a same-site recursive crawl and a sitemap reader.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/httpapi"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// Loader kinds served by this package.
const (
	KindPage      = "web"
	KindRecursive = "recursive"
	KindSitemap   = "sitemap"
)

const (
	// DefaultTimeout bounds each page request.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the largest page body accepted.
	MaxPageSize = 5 << 20

	// UserAgent identifies the crawler to servers.
	UserAgent = "shelby-ingest/1.0"
)

// fetcher wraps the shared HTTP client with page conversion.
type fetcher struct {
	client *httpapi.Client
}

func newFetcher(rps float64) *fetcher {
	return &fetcher{client: httpapi.NewClient(httpapi.Config{
		Provider:          "web",
		Timeout:           DefaultTimeout,
		RequestsPerSecond: rps,
		Header:            http.Header{"User-Agent": []string{UserAgent}},
	})}
}

// fetch downloads one page. The document URI is the requested URL so that
// identities stay stable when a server redirects.
func (f *fetcher) fetch(ctx context.Context, pageURL string) (*httpapi.Page, domain.RawDocument, error) {
	page, err := f.client.Get(ctx, "fetch "+pageURL, pageURL, MaxPageSize)
	if err != nil {
		return nil, domain.RawDocument{}, err
	}
	mimeType := page.ContentType
	if mimeType == "" {
		mimeType = "text/html"
	}
	return page, domain.RawDocument{
		URI:        pageURL,
		MIMEType:   mimeType,
		Content:    page.Body,
		ModifiedAt: page.LastModified,
		Metadata: map[string]any{
			"final_url": page.URL,
		},
	}, nil
}

// isGone reports a page that no longer exists. Such pages are skipped so that
// their chunks are pruned instead of failing the whole load.
func isGone(err error) bool {
	var opErr *httpapi.OperationError
	if !errors.As(err, &opErr) {
		return false
	}
	return opErr.StatusCode == http.StatusNotFound || opErr.StatusCode == http.StatusGone
}

// parseStart validates an absolute http(s) URL.
func parseStart(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: source uri %q: %v", domain.ErrInvalidInput, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: source uri %q is not an http(s) url", domain.ErrInvalidInput, raw)
	}
	u.Fragment = ""
	return u, nil
}

func intOption(ref domain.ProviderRef, key string, fallback int) (int, error) {
	raw := ref.Get(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", domain.ErrInvalidInput, key, raw)
	}
	return v, nil
}

func rateOption(ref domain.ProviderRef, fallback float64) (float64, error) {
	raw := ref.Get("rate", "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: rate must be a positive number, got %q", domain.ErrInvalidInput, raw)
	}
	return v, nil
}
