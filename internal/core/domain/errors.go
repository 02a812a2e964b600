package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown loader, embedder or vector store kind.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrMissingCredentials indicates a provider is configured without its secret.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrSourceLocked indicates another ingestion pass holds the source.
	ErrSourceLocked = errors.New("source is locked by another ingestion pass")

	// ErrLockLost indicates a held source lock expired or was taken over mid-pass.
	ErrLockLost = errors.New("source lock lost")

	// ErrHasChildren indicates a delete was refused because children still exist.
	ErrHasChildren = errors.New("entity still has children")

	// Processing Errors.

	// ErrContentTooSmall marks a document filtered for being below the minimum length.
	// It is a skip decision, counted and logged, never a failure.
	ErrContentTooSmall = errors.New("content below minimum length")

	// ErrChunkTooLarge indicates a chunk exceeds the embedding provider's item limit.
	ErrChunkTooLarge = errors.New("chunk exceeds provider token limit")

	// ErrDimensionMismatch indicates a provider returned vectors of the wrong size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// SourceFetchError reports a loader that could not retrieve raw documents.
type SourceFetchError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetching source %s failed after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// EmbeddingBatchError reports one batch of texts that failed to embed.
type EmbeddingBatchError struct {
	Batch int
	IDs   []string
	Err   error
}

func (e *EmbeddingBatchError) Error() string {
	return fmt.Sprintf("embedding batch %d (%d items) failed: %v", e.Batch, len(e.IDs), e.Err)
}

func (e *EmbeddingBatchError) Unwrap() error { return e.Err }

// VectorStoreWriteError reports an upsert or delete batch that was not confirmed.
type VectorStoreWriteError struct {
	Op        string
	Namespace string
	IDs       []string
	Err       error
}

func (e *VectorStoreWriteError) Error() string {
	return fmt.Sprintf("vector store %s in namespace %q failed for %d records: %v",
		e.Op, e.Namespace, len(e.IDs), e.Err)
}

func (e *VectorStoreWriteError) Unwrap() error { return e.Err }

// CatalogTransactionError reports a rolled-back catalog transaction for one document.
type CatalogTransactionError struct {
	DocumentURI string
	Err         error
}

func (e *CatalogTransactionError) Error() string {
	return fmt.Sprintf("catalog transaction for %s rolled back: %v", e.DocumentURI, e.Err)
}

func (e *CatalogTransactionError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the whole run rather than one unit.
// Misconfiguration is fatal; everything else is isolated per source, document or batch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrInvalidInput)
}
