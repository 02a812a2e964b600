package domain

import (
	"strconv"
	"strings"
	"time"
)

// Document represents one fetched unit of content from a source.
// A document is unique by (SourceID, URI); re-ingesting the same URI updates it.
type Document struct {
	// ID is the deterministic identifier derived from (domain, source, URI).
	ID string

	// SourceID links to the Source that produced this document.
	SourceID string

	// URI is the original location of the document.
	URI string

	// Title is the document title, derived from the URI when the source has none.
	Title string

	// Content is the cleaned text the chunks were cut from.
	Content string

	// InputType records how the content arrived (e.g. "text/html").
	InputType string

	// DocType is the logical document type (e.g. "docs", "api").
	DocType string

	// TokenCount is the token length of Content.
	TokenCount int

	// Chunks is the ordered chunk list, populated on load.
	Chunks []Chunk

	// PublishedAt is the source-reported publication time, if any.
	PublishedAt time.Time

	// CreatedAt is when the document was first indexed.
	CreatedAt time.Time

	// UpdatedAt is when the document was last re-indexed.
	UpdatedAt time.Time
}

// Chunk is a token-bounded slice of a document's cleaned content.
// Every chunk row in the catalog has exactly one vector in the store.
type Chunk struct {
	// ID is the stable external ID used as the vector store key.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Sequence is the position of the chunk within the document.
	Sequence int

	// Content is the chunk text.
	Content string

	// TokenCount is the token length of Content.
	TokenCount int

	// ContentHash fingerprints Content for change detection.
	ContentHash string

	// Database names the vector store provider holding the vector.
	Database string

	// Metadata is the provenance written alongside the vector.
	Metadata map[string]string
}

// ChunkID derives the external ID of the chunk at seq in the document.
func ChunkID(documentID string, seq int) string {
	return documentID + "-" + strconv.Itoa(seq)
}

// ParseChunkID splits an external chunk ID into document ID and sequence.
func ParseChunkID(id string) (documentID string, seq int, ok bool) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

// IngestDoc is the normalised in-memory record produced before chunking.
// It only lives for the duration of one ingestion pass.
type IngestDoc struct {
	Title           string
	URI             string
	InputType       string
	DocType         string
	PrecleanContent string
	Content         string
	PrecleanTokens  int
	ContentTokens   int
	PublishedAt     time.Time
	ModifiedAt      time.Time
	Metadata        map[string]any
}

// RetrievalDoc is one query hit, produced fresh per query.
type RetrievalDoc struct {
	// ChunkID is the external ID of the matched chunk.
	ChunkID string

	// Content is the chunk text.
	Content string

	// Title is the parent document title.
	Title string

	// URI is the parent document location.
	URI string

	// DocType is the logical document type.
	DocType string

	// Score is the similarity reported by the vector store.
	Score float64

	// Rank is the 1-based position in the result list.
	Rank int

	// DocumentID links to the parent Document.
	DocumentID string

	// SourceName names the originating source.
	SourceName string

	// DomainName names the owning domain.
	DomainName string
}
