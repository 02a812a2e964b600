package driven

import (
	"context"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// Normaliser turns raw document bytes into cleaned text.
// Each normaliser handles specific MIME types (e.g., HTML, Markdown).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Generic MIME normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise extracts title and text from a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
// Chunking is handled by the ingest processor.
type NormaliseResult struct {
	// Title is the extracted title, empty when the content has none.
	Title string

	// Content is the extracted text before whitespace cleaning.
	Content string
}
