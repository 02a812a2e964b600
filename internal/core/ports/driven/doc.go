// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for ingestion to run:
//
//   - Loader: Fetches raw documents from one source
//   - LoaderFactory: Creates loaders from a source's provider selection
//   - NormaliserRegistry: Turns raw bytes into cleaned text by MIME type
//   - Tokenizer: Counts tokens for chunking and embedding budgets
//   - EmbeddingService: Generates dense vectors
//   - VectorStore: Namespaced vector storage
//   - Catalog: Domains, sources, documents and chunk rows
//   - SourceLocker: Per-source mutual exclusion
//
// # Optional Interfaces
//
// These can be nil and the pipeline degrades gracefully:
//
//   - SparseEncoder: Lexical vectors for hybrid retrieval. Without it, records carry dense values only.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
