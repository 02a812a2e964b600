package html

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// contentIDs are element ids that mark the main content of documentation sites.
var contentIDs = []string{"content", "main-content", "main"}

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Svg: true, atom.Nav: true, atom.Header: true, atom.Footer: true,
	atom.Iframe: true, atom.Form: true, atom.Button: true,
}

// block elements are separated by newlines in the extracted text.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Pre: true, atom.Blockquote: true,
	atom.Table: true, atom.Tr: true, atom.Br: true, atom.Hr: true, atom.Dt: true, atom.Dd: true,
}

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise extracts the title and main text of an HTML page.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	title, text, err := Extract(raw.Content)
	if err != nil {
		return nil, err
	}
	if raw.Title != "" {
		title = raw.Title
	}
	return &driven.NormaliseResult{Title: title, Content: text}, nil
}

// Extract parses an HTML page and returns its title and main text.
// The title comes from <title>, falling back to the first <h1>.
func Extract(content []byte) (title, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", "", err
	}

	if t := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		title = collapse(textOf(t))
	}
	if title == "" {
		if h := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.H1 }); h != nil {
			title = collapse(textOf(h))
		}
	}

	root := mainContent(doc)
	var b strings.Builder
	render(&b, root)
	return title, tidy(b.String()), nil
}

// ExtractLinks returns the absolute http(s) links of a page, resolved against base.
// Fragments are dropped and duplicates removed.
func ExtractLinks(content []byte, base *url.URL) []string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(a.Val))
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				abs.Fragment = ""
				if abs.Scheme != "http" && abs.Scheme != "https" {
					continue
				}
				s := abs.String()
				if _, ok := seen[s]; !ok {
					seen[s] = struct{}{}
					links = append(links, s)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// mainContent picks the content region: a known content id, then <main>,
// then <article>, then <body>.
func mainContent(doc *html.Node) *html.Node {
	for _, id := range contentIDs {
		if n := find(doc, func(n *html.Node) bool { return attr(n, "id") == id }); n != nil {
			return n
		}
	}
	for _, a := range []atom.Atom{atom.Main, atom.Article, atom.Body} {
		want := a
		if n := find(doc, func(n *html.Node) bool { return n.DataAtom == want }); n != nil {
			return n
		}
	}
	return doc
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
	}
	isBlock := n.Type == html.ElementNode && block[n.DataAtom]
	if isBlock {
		b.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	if isBlock {
		b.WriteString("\n")
	}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tidy collapses horizontal whitespace on each line and trims blank runs.
// Paragraph structure survives as newlines for the chunker.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, collapse(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
