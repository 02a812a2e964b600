// Package normalisers provides implementations of the Normaliser interface
// for the document formats loaders produce. Each normaliser knows how to
// extract a title and text content from a specific MIME type.
//
// Normalisers are registered with the Registry at startup.
package normalisers
