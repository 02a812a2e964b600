// Package chunker splits cleaned document text into token-bounded,
// overlap-aware chunks using balanced recursive splitting.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Default lengths in tokens.
const (
	DefaultGoalLength = 750
	DefaultMaxLength  = 1000
	DefaultOverlap    = 112
)

// levels are the split boundaries in decreasing priority.
// Separators stay attached to the text before them so pieces concatenate back.
var levels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "? ", "! "},
	{"; ", ", "},
	{" "},
}

// Piece is one chunk. The first Overlap bytes of Text repeat the
// end of the previous piece.
type Piece struct {
	Text    string
	Overlap int
}

// Body returns the text that is new in this piece.
func (p Piece) Body() string {
	return p.Text[p.Overlap:]
}

// Splitter performs balanced recursive splitting.
type Splitter struct {
	tokenizer driven.Tokenizer
	goal      int
	max       int
	overlap   int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithGoalLength sets the target chunk size in tokens.
func WithGoalLength(n int) Option {
	return func(s *Splitter) { s.goal = n }
}

// WithMaxLength sets the hard chunk size limit in tokens.
func WithMaxLength(n int) Option {
	return func(s *Splitter) { s.max = n }
}

// WithOverlap sets the number of tokens shared by adjacent chunks.
func WithOverlap(n int) Option {
	return func(s *Splitter) { s.overlap = n }
}

// New creates a splitter counting with tok.
func New(tok driven.Tokenizer, opts ...Option) (*Splitter, error) {
	s := &Splitter{
		tokenizer: tok,
		goal:      DefaultGoalLength,
		max:       DefaultMaxLength,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}

	if tok == nil {
		return nil, fmt.Errorf("%w: chunker needs a tokenizer", domain.ErrInvalidInput)
	}
	if s.goal <= 0 || s.max < s.goal {
		return nil, fmt.Errorf("%w: chunker needs 0 < goal (%d) <= max (%d)", domain.ErrInvalidInput, s.goal, s.max)
	}
	if s.overlap < 0 || s.overlap >= s.goal {
		return nil, fmt.Errorf("%w: chunker overlap %d must be in [0, goal)", domain.ErrInvalidInput, s.overlap)
	}
	return s, nil
}

// Split cuts text into chunks of at most max tokens, each near goal tokens.
func Split(tok driven.Tokenizer, text string, goalLength, maxLength, overlap int) ([]string, error) {
	s, err := New(tok, WithGoalLength(goalLength), WithMaxLength(maxLength), WithOverlap(overlap))
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

// Split returns the chunk texts, overlap included.
func (s *Splitter) Split(text string) []string {
	pieces := s.SplitWithOverlap(text)
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.Text
	}
	return out
}

// SplitWithOverlap returns the chunks with their overlap lengths.
// Empty text yields no pieces; text within goal yields exactly one.
func (s *Splitter) SplitWithOverlap(text string) []Piece {
	if text == "" {
		return nil
	}
	total := s.tokenizer.Count(text)
	if total <= s.goal {
		return []Piece{{Text: text}}
	}

	n := ceilDiv(total, s.goal)
	target := ceilDiv(total, n)
	atoms := s.atomize(text, s.max-s.overlap, 0)

	var (
		pieces []Piece
		prefix string
		body   strings.Builder
	)
	start := func(atom string) {
		if prefix != "" && s.tokenizer.Count(prefix+atom) > s.max {
			prefix = ""
		}
		body.Reset()
		body.WriteString(atom)
	}
	flush := func() {
		full := prefix + body.String()
		pieces = append(pieces, Piece{Text: full, Overlap: len(prefix)})
		prefix = s.overlapTail(full)
	}

	for _, atom := range atoms {
		if body.Len() == 0 {
			start(atom)
			continue
		}
		current := body.String()
		if s.tokenizer.Count(current) >= target || s.tokenizer.Count(prefix+current+atom) > s.max {
			flush()
			start(atom)
			continue
		}
		body.WriteString(atom)
	}
	if body.Len() > 0 {
		flush()
	}
	return pieces
}

// Join reverses SplitWithOverlap.
func Join(pieces []Piece) string {
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(p.Body())
	}
	return b.String()
}

// atomize breaks text into consecutive pieces of at most limit tokens,
// preferring the highest priority boundary that works.
func (s *Splitter) atomize(text string, limit, level int) []string {
	if s.tokenizer.Count(text) <= limit {
		return []string{text}
	}
	if level >= len(levels) {
		return s.hardSplit(text, limit)
	}
	parts := splitKeep(text, levels[level])
	if len(parts) == 1 {
		return s.atomize(text, limit, level+1)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, s.atomize(p, limit, level+1)...)
	}
	return out
}

// hardSplit cuts at rune boundaries when no separator is left.
func (s *Splitter) hardSplit(text string, limit int) []string {
	var out []string
	for text != "" {
		bounds := runeBounds(text)
		lo, hi := 1, len(bounds)
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if s.tokenizer.Count(text[:bounds[mid-1]]) <= limit {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		cut := bounds[lo-1]
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}

// overlapTail returns the longest word-aligned proper suffix of text
// that fits within the overlap budget.
func (s *Splitter) overlapTail(text string) string {
	if s.overlap <= 0 {
		return ""
	}
	best := len(text)
	for i := len(text) - 1; i > 0; i-- {
		if !isWordStart(text, i) {
			continue
		}
		if s.tokenizer.Count(text[i:]) > s.overlap {
			break
		}
		best = i
	}
	return text[best:]
}

func isWordStart(text string, i int) bool {
	r, _ := utf8.DecodeRuneInString(text[i:])
	prev, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsSpace(r) && unicode.IsSpace(prev)
}

// splitKeep splits after every occurrence of any separator.
func splitKeep(text string, seps []string) []string {
	var parts []string
	for text != "" {
		cut := -1
		for _, sep := range seps {
			if i := strings.Index(text, sep); i >= 0 && (cut < 0 || i+len(sep) < cut) {
				cut = i + len(sep)
			}
		}
		if cut < 0 || cut == len(text) {
			parts = append(parts, text)
			break
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return parts
}

// runeBounds returns the byte offset after each rune.
func runeBounds(text string) []int {
	bounds := make([]int, 0, len(text))
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
		bounds = append(bounds, i)
	}
	return bounds
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
