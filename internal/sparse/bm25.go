// Package sparse produces lexical (BM25) sparse vectors for hybrid retrieval.
//
// The encoder is fitted on the texts of one upsert batch only, so the
// statistics never leak between unrelated ingestion runs.
package sparse

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

var _ driven.SparseEncoder = (*Encoder)(nil)

// Default BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {},
}

// Encoder is a BM25 encoder. The zero value is not usable; use New.
type Encoder struct {
	k1 float64
	b  float64
}

// Model holds the length statistics of one fit.
type Model struct {
	k1        float64
	b         float64
	docCount  int
	avgDocLen float64
}

// New returns an encoder with the default parameters.
func New() *Encoder {
	return &Encoder{k1: DefaultK1, b: DefaultB}
}

// Fit computes the average document length over corpus.
func (e *Encoder) Fit(corpus []string) *Model {
	m := &Model{k1: e.k1, b: e.b}
	total := 0
	for _, text := range corpus {
		total += len(Tokenize(text))
	}
	m.docCount = len(corpus)
	if m.docCount > 0 {
		m.avgDocLen = float64(total) / float64(m.docCount)
	}
	return m
}

// EncodeDocuments fits on texts and returns one vector per text.
func (e *Encoder) EncodeDocuments(texts []string) []*domain.SparseVector {
	m := e.Fit(texts)
	out := make([]*domain.SparseVector, len(texts))
	for i, text := range texts {
		out[i] = m.EncodeDocument(text)
	}
	return out
}

// EncodeDocument returns the length-normalised term frequency vector of text.
func (m *Model) EncodeDocument(text string) *domain.SparseVector {
	terms := Tokenize(text)
	tf := termFrequencies(terms)
	docLen := float64(len(terms))
	avg := m.avgDocLen
	if avg == 0 {
		avg = 1
	}

	weights := make(map[uint32]float64, len(tf))
	for idx, f := range tf {
		freq := float64(f)
		weights[idx] = freq * (m.k1 + 1) / (freq + m.k1*(1-m.b+m.b*docLen/avg))
	}
	return toVector(weights)
}

// Tokenize lowercases text, splits on non-alphanumerics and drops stop words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TermIndex hashes a term into the sparse index space.
func TermIndex(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}

func termFrequencies(terms []string) map[uint32]int {
	tf := make(map[uint32]int, len(terms))
	for _, term := range terms {
		tf[TermIndex(term)]++
	}
	return tf
}

func toVector(weights map[uint32]float64) *domain.SparseVector {
	v := &domain.SparseVector{
		Indices: make([]uint32, 0, len(weights)),
		Values:  make([]float32, 0, len(weights)),
	}
	for idx := range weights {
		v.Indices = append(v.Indices, idx)
	}
	sort.Slice(v.Indices, func(i, j int) bool { return v.Indices[i] < v.Indices[j] })
	for _, idx := range v.Indices {
		v.Values = append(v.Values, float32(weights[idx]))
	}
	return v
}
