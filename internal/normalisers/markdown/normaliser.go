// Package markdown provides a Normaliser for Markdown documents.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var (
	fence        = regexp.MustCompile("(?m)^\\s*(```|~~~)[^\\n]*$")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquote   = regexp.MustCompile(`(?m)^>\s?`)
	hr           = regexp.MustCompile(`(?m)^\s*[-*_]{3,}\s*$`)
	listMarkers  = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	emphasis     = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	italic       = regexp.MustCompile(`(^|[\s(])[*_](\S(?:[^*_\n]*?\S)?)[*_]`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	frontMatter  = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise strips markdown formatting and returns the first H1 as title.
// Code block contents are kept.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := string(raw.Content)
	title := raw.Title
	if title == "" {
		title = extractMarkdownTitle(content)
	}

	return &driven.NormaliseResult{
		Title:   title,
		Content: stripMarkdown(content),
	}, nil
}

// extractMarkdownTitle returns the text of the first H1 heading outside code fences.
func extractMarkdownTitle(content string) string {
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

// stripMarkdown removes common markdown formatting for plain text content.
func stripMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = frontMatter.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = fence.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "$1")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = hr.ReplaceAllString(content, "")
	content = blockquote.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "$1")
	content = emphasis.ReplaceAllString(content, "$2")
	content = italic.ReplaceAllString(content, "$1$2")
	return strings.TrimSpace(content)
}
