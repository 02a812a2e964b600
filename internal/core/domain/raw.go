package domain

import "time"

// RawDocument is the uniform record a loader produces.
// Content is opaque; normalisers turn it into text.
type RawDocument struct {
	// URI is the unique location of the document within its source.
	URI string

	// Title is the source-provided title, if any.
	Title string

	// MIMEType describes Content (e.g. "text/html", "text/markdown").
	MIMEType string

	// Content is the raw payload.
	Content []byte

	// PublishedAt is the source-reported publication time, if any.
	PublishedAt time.Time

	// ModifiedAt is the source-reported modification time, if any.
	ModifiedAt time.Time

	// Metadata holds loader-specific attributes.
	Metadata map[string]any
}
