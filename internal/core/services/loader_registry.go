package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
)

// Ensure LoaderRegistry implements the interface.
var _ driving.LoaderRegistry = (*LoaderRegistry)(nil)

// LoaderRegistry provides information about available loader kinds.
type LoaderRegistry struct {
	mu      sync.RWMutex
	loaders map[string]domain.LoaderType
}

// NewLoaderRegistry creates a registry with the built-in loaders.
func NewLoaderRegistry() *LoaderRegistry {
	r := &LoaderRegistry{loaders: make(map[string]domain.LoaderType)}
	r.registerBuiltinLoaders()
	return r
}

func (r *LoaderRegistry) registerBuiltinLoaders() {
	r.Register(domain.LoaderType{
		Kind:        "web",
		Name:        "Web page",
		Description: "Fetch the single page at the source URI",
	})
	r.Register(domain.LoaderType{
		Kind:        "recursive",
		Name:        "Recursive crawl",
		Description: "Crawl same-site links starting at the source URI",
		ConfigKeys:  recursiveConfigKeys(),
	})
	r.Register(domain.LoaderType{
		Kind:        "sitemap",
		Name:        "Sitemap",
		Description: "Fetch every page listed in the site's sitemap",
		ConfigKeys:  sitemapConfigKeys(),
	})
	r.Register(domain.LoaderType{
		Kind:        "directory",
		Name:        "Local directory",
		Description: "Read matching files below a local directory",
		ConfigKeys:  directoryConfigKeys(),
	})
	r.Register(domain.LoaderType{
		Kind:          "github",
		Name:          "GitHub repository",
		Description:   "Read matching files from a GitHub repository",
		CredentialEnv: "GITHUB_TOKEN",
		ConfigKeys:    githubConfigKeys(),
	})
}

func recursiveConfigKeys() []domain.ConfigKey {
	return []domain.ConfigKey{
		{Key: "max_depth", Description: "Link hops followed from the start page", Default: "2"},
		{Key: "max_pages", Description: "Upper bound on fetched pages", Default: "200"},
		{Key: "rate", Description: "Requests per second", Default: "2"},
		{Key: "exclude", Description: "Comma-separated path prefixes to skip"},
	}
}

func sitemapConfigKeys() []domain.ConfigKey {
	return []domain.ConfigKey{
		{Key: "sitemap_url", Description: "Sitemap location", Default: "<uri>/sitemap.xml"},
		{Key: "filter_url", Description: "Only pages whose URL contains this text"},
		{Key: "rate", Description: "Requests per second", Default: "4"},
	}
}

func directoryConfigKeys() []domain.ConfigKey {
	return []domain.ConfigKey{
		{Key: "path", Description: "Directory to read", Required: true},
		{Key: "patterns", Description: "Comma-separated file globs", Default: "*.md,*.markdown,*.txt,*.html,*.htm"},
		{Key: "exclude", Description: "Comma-separated directory names to skip", Default: ".git,node_modules"},
	}
}

func githubConfigKeys() []domain.ConfigKey {
	return []domain.ConfigKey{
		{Key: "owner", Description: "Repository owner", Required: true},
		{Key: "repo", Description: "Repository name", Required: true},
		{Key: "branch", Description: "Branch to read", Default: "<default branch>"},
		{Key: "path", Description: "Only files below this path"},
		{Key: "patterns", Description: "Comma-separated file globs", Default: "*.md,*.markdown,*.txt"},
	}
}

// Register adds or replaces a loader type.
func (r *LoaderRegistry) Register(lt domain.LoaderType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[lt.Kind] = lt
}

// List returns every loader type ordered by kind.
func (r *LoaderRegistry) List() []domain.LoaderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.LoaderType, 0, len(r.loaders))
	for _, lt := range r.loaders {
		result = append(result, lt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// Get returns the loader type for a kind.
func (r *LoaderRegistry) Get(kind string) (*domain.LoaderType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lt, ok := r.loaders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: loader %q", domain.ErrUnsupportedType, kind)
	}
	return &lt, nil
}

// ValidateSource checks a source's effective loader selection.
func (r *LoaderRegistry) ValidateSource(d *domain.Domain, s *domain.Source) error {
	ref := s.Loader
	if ref.IsZero() {
		ref = d.Loader
	}
	if ref.IsZero() {
		return fmt.Errorf("%w: no loader kind", domain.ErrInvalidInput)
	}
	lt, err := r.Get(ref.Kind)
	if err != nil {
		return err
	}
	return lt.Validate(ref)
}
