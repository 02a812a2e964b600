package normalisers

import (
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/normalisers/html"
	"github.com/shelby-as-a-service/shelby/internal/normalisers/markdown"
	"github.com/shelby-as-a-service/shelby/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches raw documents to the highest priority normaliser
// registered for their MIME type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Default returns a registry with the HTML, Markdown and plain text normalisers.
func Default() *Registry {
	r := NewRegistry()
	r.Register(html.New())
	r.Register(markdown.New())
	r.Register(plaintext.New())
	return r
}

// Register adds a normaliser to the registry.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// Normalise transforms a raw document using the best matching normaliser.
// An empty MIME type is treated as text/plain.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	mimeType := baseMIMEType(raw.MIMEType)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.normalisers {
		for _, supported := range n.SupportedMIMETypes() {
			if supported == mimeType {
				return n.Normalise(ctx, raw)
			}
		}
	}
	return nil, fmt.Errorf("%w: no normaliser for %q", domain.ErrUnsupportedType, raw.MIMEType)
}

// SupportedMIMETypes returns all MIME types that can be normalised.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, n := range r.normalisers {
		for _, t := range n.SupportedMIMETypes() {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// baseMIMEType strips parameters such as charset.
func baseMIMEType(t string) string {
	if t == "" {
		return "text/plain"
	}
	if parsed, _, err := mime.ParseMediaType(t); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(t))
}
