// Package html provides a Normaliser implementation for HTML documents.
// It extracts readable text from the main content region of a page,
// dropping scripts, styles and navigation chrome.
package html
