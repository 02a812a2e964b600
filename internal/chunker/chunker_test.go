package chunker

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/tokenizer"
)

var words = tokenizer.Words{}

// sampleText builds deterministic prose with paragraphs, sentences and
// one long separator-free run.
func sampleText(seed int64, paragraphs int) string {
	rng := rand.New(rand.NewSource(seed))
	vocab := []string{"vector", "store", "chunk", "token", "index", "source", "domain", "embed", "query", "batch"}

	var b strings.Builder
	for p := 0; p < paragraphs; p++ {
		sentences := 1 + rng.Intn(6)
		for s := 0; s < sentences; s++ {
			n := 3 + rng.Intn(15)
			for w := 0; w < n; w++ {
				if w > 0 {
					b.WriteString(" ")
				}
				b.WriteString(vocab[rng.Intn(len(vocab))])
			}
			b.WriteString([]string{". ", "? ", "! "}[rng.Intn(3)])
		}
		if p == paragraphs/2 {
			b.WriteString(strings.Repeat("-", 60))
		}
		b.WriteString([]string{"\n\n", "\n", "\n\n\n"}[rng.Intn(3)])
	}
	return b.String()
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"zero goal", []Option{WithGoalLength(0)}},
		{"max below goal", []Option{WithGoalLength(100), WithMaxLength(50)}},
		{"negative overlap", []Option{WithOverlap(-1)}},
		{"overlap equals goal", []Option{WithGoalLength(10), WithMaxLength(20), WithOverlap(10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(words, tt.opts...)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}

	_, err := New(nil)
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(words)
	require.NoError(t, err)
	assert.Equal(t, DefaultGoalLength, s.goal)
	assert.Equal(t, DefaultMaxLength, s.max)
	assert.Equal(t, DefaultOverlap, s.overlap)
}

func TestSplit_EmptyText(t *testing.T) {
	s, err := New(words, WithGoalLength(10), WithMaxLength(20), WithOverlap(2))
	require.NoError(t, err)
	assert.Empty(t, s.SplitWithOverlap(""))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	chunks, err := Split(words, "a short document.", 10, 20, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a short document."}, chunks)
}

func TestSplit_RoundTripAndTokenBound(t *testing.T) {
	settings := []struct{ goal, max, overlap int }{
		{5, 5, 0},
		{5, 8, 2},
		{10, 10, 3},
		{20, 30, 3},
		{50, 80, 7},
		{100, 150, 15},
	}

	for seed := int64(1); seed <= 5; seed++ {
		text := sampleText(seed, 12)
		for _, cfg := range settings {
			name := fmt.Sprintf("seed%d/goal%d/max%d/overlap%d", seed, cfg.goal, cfg.max, cfg.overlap)
			t.Run(name, func(t *testing.T) {
				s, err := New(words, WithGoalLength(cfg.goal), WithMaxLength(cfg.max), WithOverlap(cfg.overlap))
				require.NoError(t, err)

				pieces := s.SplitWithOverlap(text)
				require.NotEmpty(t, pieces)
				assert.Equal(t, text, Join(pieces))
				assert.Zero(t, pieces[0].Overlap)

				for i, p := range pieces {
					assert.LessOrEqual(t, words.Count(p.Text), cfg.max, "piece %d", i)
					assert.NotEmpty(t, p.Body(), "piece %d", i)
					if i > 0 && p.Overlap > 0 {
						assert.True(t, strings.HasSuffix(pieces[i-1].Text, p.Text[:p.Overlap]), "piece %d", i)
						assert.LessOrEqual(t, words.Count(p.Text[:p.Overlap]), cfg.overlap)
					}
				}
			})
		}
	}
}

func TestSplit_OverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon. ", 20)
	s, err := New(words, WithGoalLength(12), WithMaxLength(16), WithOverlap(3))
	require.NoError(t, err)

	pieces := s.SplitWithOverlap(text)
	require.Greater(t, len(pieces), 1)

	overlapped := 0
	for _, p := range pieces[1:] {
		if p.Overlap > 0 {
			overlapped++
		}
	}
	assert.Equal(t, len(pieces)-1, overlapped)
}

func TestSplit_Balanced(t *testing.T) {
	// 30 one-word sentences with goal 20 should produce two chunks of 15, not 20 and 10.
	text := strings.Repeat("word ", 30)
	s, err := New(words, WithGoalLength(20), WithMaxLength(20), WithOverlap(0))
	require.NoError(t, err)

	pieces := s.SplitWithOverlap(text)
	require.Len(t, pieces, 2)
	assert.Equal(t, 15, words.Count(pieces[0].Text))
	assert.Equal(t, 15, words.Count(pieces[1].Text))
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("one two three four five ", 2))
	text := para + "\n\n" + para + "\n\n" + para
	s, err := New(words, WithGoalLength(10), WithMaxLength(12), WithOverlap(0))
	require.NoError(t, err)

	pieces := s.SplitWithOverlap(text)
	require.Len(t, pieces, 3)
	assert.Equal(t, para+"\n\n", pieces[0].Text)
	assert.Equal(t, para, pieces[2].Text)
}

func TestSplit_HardSplitWithoutSeparators(t *testing.T) {
	text := strings.Repeat("#", 45)
	pieces, err := Split(words, text, 10, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, text, strings.Join(pieces, ""))
	for _, p := range pieces {
		assert.LessOrEqual(t, words.Count(p), 10)
	}
}

func TestSplit_WithBPETokenizer(t *testing.T) {
	tok, err := tokenizer.New(tokenizer.DefaultEncoding)
	require.NoError(t, err)

	text := sampleText(42, 40)
	s, err := New(tok, WithGoalLength(60), WithMaxLength(80), WithOverlap(9))
	require.NoError(t, err)

	pieces := s.SplitWithOverlap(text)
	require.Greater(t, len(pieces), 1)
	assert.Equal(t, text, Join(pieces))
	for i, p := range pieces {
		assert.LessOrEqual(t, tok.Count(p.Text), 80, "piece %d", i)
	}
}
