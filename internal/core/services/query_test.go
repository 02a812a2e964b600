package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
)

func TestQuery_ReturnsRankedProvenance(t *testing.T) {
	h := newHarness(t)
	h.loaders["docs"].set(rawDoc(introURI, words("a", 45)))
	h.run(t, "docs", driving.IngestOptions{})

	target := DocumentID(testDomain, "docs", introURI) + "-1"
	rec, ok := h.store.Get(testDomain, target)
	require.True(t, ok)
	text := EmbeddingText(rec.Metadata[domain.MetaContent], rec.Metadata[domain.MetaTitle])

	q := NewQueryService(h.catalog, h.embed, h.stores)
	docs, err := q.Query(context.Background(), driving.QueryRequest{Domain: testDomain, Text: text, TopK: 2})

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, target, docs[0].ChunkID)
	assert.Equal(t, 1, docs[0].Rank)
	assert.Equal(t, 2, docs[1].Rank)
	assert.Equal(t, introURI, docs[0].URI)
	assert.Equal(t, "docs: intro", docs[0].Title)
	assert.Equal(t, "docs", docs[0].DocType)
	assert.Equal(t, "docs", docs[0].SourceName)
	assert.Equal(t, testDomain, docs[0].DomainName)
	assert.Equal(t, DocumentID(testDomain, "docs", introURI), docs[0].DocumentID)
	assert.GreaterOrEqual(t, docs[0].Score, docs[1].Score)
}

func TestQuery_DocTypeFilter(t *testing.T) {
	h := newHarness(t)
	h.loaders["docs"].set(rawDoc(introURI, words("a", 45)))
	h.run(t, "docs", driving.IngestOptions{})
	q := NewQueryService(h.catalog, h.embed, h.stores)

	docs, err := q.Query(context.Background(), driving.QueryRequest{Domain: testDomain, Text: "a1", DocType: "api"})
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = q.Query(context.Background(), driving.QueryRequest{Domain: testDomain, Text: "a1", DocType: "docs"})
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestQuery_Errors(t *testing.T) {
	h := newHarness(t)
	q := NewQueryService(h.catalog, h.embed, h.stores)

	_, err := q.Query(context.Background(), driving.QueryRequest{Domain: testDomain, Text: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = q.Query(context.Background(), driving.QueryRequest{Domain: "missing", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
