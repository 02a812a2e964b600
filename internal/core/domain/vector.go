package domain

// Metadata keys persisted alongside every vector.
// These names are queried at retrieval time; renaming one is a breaking change.
const (
	MetaContent    = "content"
	MetaTitle      = "title"
	MetaURI        = "uri"
	MetaSourceName = "source_name"
	MetaDomainName = "domain_name"
	MetaInputType  = "input_type"
	MetaDocType    = "doc_type"
	MetaChunkSeq   = "chunk_seq"
	MetaTokenCount = "token_count"
	MetaDocumentID = "document_id"
)

// SparseVector is a lexical representation as parallel index/value slices.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Len returns the number of non-zero entries.
func (v *SparseVector) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Indices)
}

// VectorRecord is the vector store projection of a chunk.
type VectorRecord struct {
	// ID is the chunk's external ID.
	ID string

	// DocumentID links the record to its document for delete-before-insert ordering.
	DocumentID string

	// Values is the dense embedding.
	Values []float32

	// Sparse is the optional lexical embedding.
	Sparse *SparseVector

	// Metadata holds the persisted chunk metadata fields.
	Metadata map[string]string
}

// VectorQuery describes a similarity query against one namespace.
type VectorQuery struct {
	// Vector is the dense query embedding.
	Vector []float32

	// Sparse is the optional lexical query embedding.
	Sparse *SparseVector

	// TopK is the number of matches to return.
	TopK int

	// Filter restricts matches by exact metadata equality.
	Filter map[string]string
}

// VectorMatch is one query hit.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// NamespaceStats reports the size of a namespace.
type NamespaceStats struct {
	Namespace   string
	VectorCount int
}
