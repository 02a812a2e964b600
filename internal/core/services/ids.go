package services

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// documentNamespace scopes document IDs so they never collide with other
// name-based UUIDs.
var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://shelby-as-a-service/document"))

// DocumentID derives the stable document ID for a URI within a source.
// Re-ingesting the same URI always yields the same ID. Parts are joined with
// NUL, which names and URIs cannot contain, so distinct triples never collide.
func DocumentID(domainName, sourceName, uri string) string {
	return uuid.NewSHA1(documentNamespace, []byte(domainName+"\x00"+sourceName+"\x00"+uri)).String()
}

// ContentHash fingerprints a chunk's text together with its metadata.
// A chunk whose hash matches its catalog row does not need re-embedding.
func ContentHash(content string, metadata map[string]string) string {
	h := sha256.New()
	h.Write([]byte(content))

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(metadata[k]))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// EmbeddingText is the text sent to the embedding provider for a chunk.
// The stored content stays the original chunk text.
func EmbeddingText(chunk, title string) string {
	return strings.ToLower(chunk + " title: " + title)
}
