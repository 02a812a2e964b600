// Package domain defines the core entities of the shelby ingestion core.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Domain: A named topic grouping of sources (one vector namespace)
//   - Source: One ingestible origin with its provider selection
//   - Document: One fetched unit of content, unique by (source, URI)
//   - Chunk: A token-bounded slice of a document, the unit stored in the vector index
//   - RawDocument: Opaque bytes from a loader
//   - VectorRecord: The vector store projection of a chunk
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
