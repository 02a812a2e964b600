// Package tokenizer counts tokens with the same encodings the embedding
// providers use, so chunk budgets and provider limits agree.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// DefaultEncoding is the encoding used by the OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

var (
	_ driven.Tokenizer = (*BPE)(nil)
	_ driven.Tokenizer = Words{}
)

var loaderOnce sync.Once

// BPE counts tokens with a tiktoken byte-pair encoding.
// BPE ranks are embedded in the binary; no network access is needed.
type BPE struct {
	name string
	enc  *tiktoken.Tiktoken
}

// New returns a BPE tokenizer for the named encoding.
func New(encoding string) (*BPE, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %q: %w", encoding, err)
	}
	return &BPE{name: encoding, enc: enc}, nil
}

// ForModel returns the tokenizer matching an embedding model name,
// falling back to DefaultEncoding for unknown models.
func ForModel(model string) (*BPE, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return New(DefaultEncoding)
	}
	return &BPE{name: model, enc: enc}, nil
}

// Count returns the number of tokens in text.
func (b *BPE) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.Encode(text, nil, nil))
}

// Name identifies the encoding.
func (b *BPE) Name() string {
	return b.name
}

// Words counts whitespace-separated words and standalone punctuation.
// It is deterministic and dependency free, used where exact BPE counts
// are not required.
type Words struct{}

// Count returns the number of word and punctuation tokens in text.
func (Words) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			n++
			inWord = false
		default:
			if !inWord {
				n++
				inWord = true
			}
		}
	}
	return n
}

// Name identifies the encoding.
func (Words) Name() string {
	return "words"
}

// Resolve returns a tokenizer by name. "words" selects Words;
// anything else is treated as a tiktoken encoding name.
func Resolve(name string) (driven.Tokenizer, error) {
	if strings.EqualFold(name, "words") {
		return Words{}, nil
	}
	return New(name)
}
