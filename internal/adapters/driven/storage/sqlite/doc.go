// Package sqlite provides the SQLite implementation of driven.Catalog.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database file holds the whole
// catalog hierarchy:
//
//   - domains: topic groupings, one vector store namespace each
//   - sources: ingestible origins within a domain
//   - documents: fetched units of content, unique per (source, URI)
//   - chunks: one row per vector written to the store
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Applied versions are recorded in schema_migrations.
//
// Deletion is bottom-up: a domain with sources, or a source with documents,
// cannot be deleted. Chunk rows are removed with their document.
//
// # Data Location
//
// By default, the database is stored at ~/.shelby/data/catalog.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
