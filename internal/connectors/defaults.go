package connectors

import (
	"github.com/shelby-as-a-service/shelby/internal/connectors/filesystem"
	"github.com/shelby-as-a-service/shelby/internal/connectors/github"
	"github.com/shelby-as-a-service/shelby/internal/connectors/web"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Options carries the settings shared by every loader of a kind.
type Options struct {
	GitHub github.ClientOptions
}

// RegisterDefaults registers all built-in loaders with the factory.
// Call this during application initialisation.
func RegisterDefaults(f driven.LoaderFactory, opts Options) {
	f.Register(web.KindPage, web.PageBuilder)
	f.Register(web.KindRecursive, web.RecursiveBuilder)
	f.Register(web.KindSitemap, web.SitemapBuilder)
	f.Register(filesystem.Kind, filesystem.Builder)
	f.Register(github.Kind, github.NewBuilder(opts.GitHub))
}

// NewDefaultFactory returns a factory with the built-in loaders registered.
func NewDefaultFactory(opts Options) *Factory {
	f := NewFactory()
	RegisterDefaults(f, opts)
	return f
}
