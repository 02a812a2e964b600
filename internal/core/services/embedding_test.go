package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/tokenizer"
)

func embedItems(n int) []EmbedItem {
	items := make([]EmbedItem, n)
	for i := range items {
		items[i] = EmbedItem{ID: "c-" + strconv.Itoa(i), Text: "text " + strconv.Itoa(i)}
	}
	return items
}

func TestEmbed_PreservesOrderAcrossBatches(t *testing.T) {
	svc := newMockEmbedder()
	o := NewEmbeddingOrchestrator(svc, tokenizer.Words{}, EmbeddingConfig{Concurrency: 3, Retry: fastRetry})

	items := embedItems(250)
	res := o.Embed(context.Background(), items)

	require.Empty(t, res.Errors)
	assert.Equal(t, 3, svc.callCount())
	for i, item := range items {
		assert.Equal(t, fakeVector(item.Text, testDims), res.Vectors[i], "item %d", i)
	}
}

func TestEmbed_ConfiguredBatchSizeBelowProviderMax(t *testing.T) {
	svc := newMockEmbedder()
	o := NewEmbeddingOrchestrator(svc, nil, EmbeddingConfig{BatchSize: 10, Retry: fastRetry})

	res := o.Embed(context.Background(), embedItems(25))
	require.Empty(t, res.Errors)
	assert.Equal(t, 3, svc.callCount())
}

func TestEmbed_FailedBatchIsIsolated(t *testing.T) {
	svc := newMockEmbedder()
	svc.maxBatch = 2
	svc.fail = func(texts []string) error {
		if texts[0] == "text 2" {
			return errBoom
		}
		return nil
	}
	o := NewEmbeddingOrchestrator(svc, nil, EmbeddingConfig{Concurrency: 2, Retry: fastRetry})

	res := o.Embed(context.Background(), embedItems(6))

	for i := range 6 {
		if i == 2 || i == 3 {
			assert.True(t, res.Failed(i), "item %d", i)
		} else {
			assert.False(t, res.Failed(i), "item %d", i)
		}
	}
	require.Len(t, res.Errors, 1)
	var batchErr *domain.EmbeddingBatchError
	require.ErrorAs(t, res.Errors[0], &batchErr)
	assert.Equal(t, 1, batchErr.Batch)
	assert.Equal(t, []string{"c-2", "c-3"}, batchErr.IDs)
	assert.ErrorIs(t, res.Errors[0], errBoom)
	assert.Len(t, res.Failures, 2)

	// Three attempts for the failing batch, one for each other batch.
	assert.Equal(t, 5, svc.callCount())
}

func TestEmbed_TransientFailureIsRetried(t *testing.T) {
	svc := newMockEmbedder()
	failures := 1
	svc.fail = func([]string) error {
		if failures > 0 {
			failures--
			return errors.New("429 too many requests")
		}
		return nil
	}
	o := NewEmbeddingOrchestrator(svc, nil, EmbeddingConfig{Retry: fastRetry})

	vectors, err := o.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 2, svc.callCount())
}

func TestEmbed_OversizedItemFailsAlone(t *testing.T) {
	svc := newMockEmbedder()
	svc.maxTokens = 5
	o := NewEmbeddingOrchestrator(svc, tokenizer.Words{}, EmbeddingConfig{Retry: fastRetry})

	items := []EmbedItem{
		{ID: "small", Text: "one two"},
		{ID: "huge", Text: strings.Repeat("word ", 10)},
	}
	res := o.Embed(context.Background(), items)

	assert.False(t, res.Failed(0))
	assert.True(t, res.Failed(1))
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], domain.ErrChunkTooLarge)
	assert.Equal(t, "huge", res.Failures[0].ID)
	assert.Equal(t, 1, svc.embeddedTexts())
}

func TestEmbed_DimensionMismatchIsBatchFailure(t *testing.T) {
	svc := newMockEmbedder()
	svc.wrongDims = true
	o := NewEmbeddingOrchestrator(svc, nil, EmbeddingConfig{Retry: fastRetry})

	_, err := o.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	// Not retried.
	assert.Equal(t, 1, svc.callCount())
}

func TestEmbed_Empty(t *testing.T) {
	svc := newMockEmbedder()
	res := NewEmbeddingOrchestrator(svc, nil, EmbeddingConfig{}).Embed(context.Background(), nil)
	assert.Empty(t, res.Vectors)
	assert.Zero(t, svc.callCount())
}

func TestEmbedQuery(t *testing.T) {
	svc := newMockEmbedder()
	v, err := NewEmbeddingOrchestrator(svc, nil, EmbeddingConfig{}).EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, fakeVector("hello", testDims), v)
}
