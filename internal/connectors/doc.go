// Package connectors holds the document loaders and the factory that maps a
// source's loader kind to its builder.
//
// Each subpackage implements [driven.Loader] for one family of sources:
//
//   - web: single pages ("web"), same-site crawls ("recursive") and
//     sitemaps ("sitemap")
//   - filesystem: local directories ("directory"), with change watching
//   - github: repository files ("github")
//
// Builders are registered once at startup with [RegisterDefaults]; the
// ingest pipeline resolves loaders through the [Factory] by kind.
package connectors
