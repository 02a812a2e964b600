package driven

import (
	"context"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// Loader fetches raw documents from one source.
// Each loader kind (web, sitemap, directory, github) implements this interface.
type Loader interface {
	// Kind returns the loader kind identifier.
	Kind() string

	// Validate checks the loader is properly configured.
	// Performs a lightweight check without fetching documents.
	Validate(ctx context.Context) error

	// Load fetches every document currently exposed by the source.
	// An empty result is not an error.
	Load(ctx context.Context) ([]domain.RawDocument, error)

	// Close releases resources.
	Close() error
}

// Watcher is implemented by loaders that can push change notifications.
type Watcher interface {
	// Watch sends a value every time the source content changes.
	// The channel is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// LoaderBuilder creates a Loader from a source.
type LoaderBuilder func(source domain.Source) (Loader, error)

// LoaderFactory creates loaders from source configuration.
// It maintains a registry of loader kinds and their builders,
// resolved once at startup.
type LoaderFactory interface {
	// Create returns a Loader for the given source.
	// Returns ErrUnsupportedType if the loader kind is unknown.
	Create(source domain.Source) (Loader, error)

	// Register adds a loader builder for the given kind.
	Register(kind string, builder LoaderBuilder)

	// SupportedKinds returns all registered loader kinds.
	SupportedKinds() []string
}
