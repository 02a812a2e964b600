package connectors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.LoaderFactory = (*Factory)(nil)

// Factory maps loader kinds to their builders.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]driven.LoaderBuilder
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{builders: make(map[string]driven.LoaderBuilder)}
}

// Register adds or replaces the builder for a loader kind.
func (f *Factory) Register(kind string, builder driven.LoaderBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[kind] = builder
}

// Create builds the loader named by the source's loader kind.
func (f *Factory) Create(source domain.Source) (driven.Loader, error) {
	f.mu.RLock()
	builder, ok := f.builders[source.Loader.Kind]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: loader %q", domain.ErrUnsupportedType, source.Loader.Kind)
	}
	loader, err := builder(source)
	if err != nil {
		return nil, fmt.Errorf("create %s loader for %s: %w", source.Loader.Kind, source.Name, err)
	}
	return loader, nil
}

// SupportedKinds returns the registered kinds, sorted.
func (f *Factory) SupportedKinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kinds := make([]string, 0, len(f.builders))
	for kind := range f.builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
