package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// setupTestStore creates a SQLite catalog in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

// createTestSource creates a domain and a source to satisfy foreign key constraints.
func createTestSource(t *testing.T, store *Store) (*domain.Domain, *domain.Source) {
	t.Helper()
	ctx := context.Background()
	d := &domain.Domain{Name: "tatum", Description: "Tatum docs"}
	require.NoError(t, store.SaveDomain(ctx, d))
	src := &domain.Source{DomainID: d.ID, Name: "docs", URI: "https://docs.tatum.io", DocType: "docs"}
	require.NoError(t, store.SaveSource(ctx, src))
	return d, src
}

func testDocument(src *domain.Source, uri string) *domain.Document {
	return &domain.Document{
		ID:       "doc-" + uri,
		SourceID: src.ID,
		URI:      uri,
		Title:    "Title " + uri,
		Content:  "content of " + uri,
		DocType:  "docs",
	}
}

func testChunks(docID string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:          domain.ChunkID(docID, i),
			DocumentID:  docID,
			Sequence:    i,
			Content:     "chunk",
			TokenCount:  1,
			ContentHash: "hash",
			Database:    "memory",
			Metadata:    map[string]string{"doc_type": "docs"},
		}
	}
	return chunks
}

// ==================== Store Creation ====================

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, DatabaseFile), store.Path())
	assert.FileExists(t, store.Path())
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveDomain(ctx, &domain.Domain{Name: "tatum"}))
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	d, err := store.GetDomain(ctx, "tatum")
	require.NoError(t, err)
	assert.Equal(t, "tatum", d.Name)

	var versions int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)
}

// ==================== Domains ====================

func TestSaveDomain_UpsertByName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := &domain.Domain{
		Name:      "tatum",
		Loader:    domain.ProviderRef{Kind: "sitemap", Config: map[string]string{"rate": "4"}},
		Processor: domain.ProcessorSettings{GoalLength: 200, MaxLength: 300},
		Database:  "pinecone",
	}
	require.NoError(t, store.SaveDomain(ctx, first))
	require.NotEmpty(t, first.ID)

	second := &domain.Domain{Name: "tatum", Description: "updated"}
	require.NoError(t, store.SaveDomain(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := store.GetDomain(ctx, "tatum")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)
	assert.Empty(t, got.Database)

	_, err = store.GetDomain(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveDomain_RoundTripsSettings(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	prune := false

	require.NoError(t, store.SaveDomain(ctx, &domain.Domain{
		Name:      "tatum",
		Loader:    domain.ProviderRef{Kind: "sitemap", Config: map[string]string{"rate": "4"}},
		Processor: domain.ProcessorSettings{GoalLength: 200, MaxLength: 300, PruneMissing: &prune},
		Database:  "pinecone",
	}))

	got, err := store.GetDomain(ctx, "tatum")
	require.NoError(t, err)
	assert.Equal(t, "sitemap", got.Loader.Kind)
	assert.Equal(t, "4", got.Loader.Config["rate"])
	assert.Equal(t, 200, got.Processor.GoalLength)
	assert.False(t, got.Processor.ShouldPrune())
	assert.Equal(t, "pinecone", got.Database)
}

func TestSaveDomain_RequiresName(t *testing.T) {
	store := setupTestStore(t)
	err := store.SaveDomain(context.Background(), &domain.Domain{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListDomains_OrderedWithSources(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		require.NoError(t, store.SaveDomain(ctx, &domain.Domain{Name: name}))
	}
	alpha, err := store.GetDomain(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, store.SaveSource(ctx, &domain.Source{DomainID: alpha.ID, Name: "b"}))
	require.NoError(t, store.SaveSource(ctx, &domain.Source{DomainID: alpha.ID, Name: "a"}))

	domains, err := store.ListDomains(ctx)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "alpha", domains[0].Name)
	require.Len(t, domains[0].Sources, 2)
	assert.Equal(t, "a", domains[0].Sources[0].Name)
	assert.Empty(t, domains[1].Sources)
}

func TestDeleteDomain_BottomUp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	_, src := createTestSource(t, store)

	err := store.DeleteDomain(ctx, "tatum")
	assert.ErrorIs(t, err, domain.ErrHasChildren)

	require.NoError(t, store.DeleteSource(ctx, src.ID))
	require.NoError(t, store.DeleteDomain(ctx, "tatum"))

	assert.ErrorIs(t, store.DeleteDomain(ctx, "tatum"), domain.ErrNotFound)
}

// ==================== Sources ====================

func TestSaveSource_UpsertKeepsLastUpdated(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	d, src := createTestSource(t, store)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkSourceUpdated(ctx, src.ID, at))

	update := &domain.Source{
		DomainID:        d.ID,
		Name:            "docs",
		URI:             "https://docs.tatum.io/v2",
		Loader:          domain.ProviderRef{Kind: "recursive", Config: map[string]string{"max_depth": "3"}},
		UpdateFrequency: 24 * time.Hour,
		BatchUpdate:     true,
	}
	require.NoError(t, store.SaveSource(ctx, update))
	assert.Equal(t, src.ID, update.ID)

	got, err := store.GetSource(ctx, "tatum", "docs")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.tatum.io/v2", got.URI)
	assert.Equal(t, "3", got.Loader.Config["max_depth"])
	assert.Equal(t, 24*time.Hour, got.UpdateFrequency)
	assert.True(t, got.BatchUpdate)
	assert.True(t, at.Equal(got.LastUpdated), "last updated %v", got.LastUpdated)
}

func TestSaveSource_UnknownDomain(t *testing.T) {
	store := setupTestStore(t)
	err := store.SaveSource(context.Background(), &domain.Source{DomainID: "nope", Name: "docs"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetSource_NotFound(t *testing.T) {
	store := setupTestStore(t)
	createTestSource(t, store)

	_, err := store.GetSource(context.Background(), "tatum", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.ListSources(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkSourceUpdated_Unknown(t *testing.T) {
	store := setupTestStore(t)
	err := store.MarkSourceUpdated(context.Background(), "nope", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Documents and chunks ====================

func TestReplaceChunks_ReplacesRows(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	_, src := createTestSource(t, store)
	doc := testDocument(src, "https://docs.tatum.io/intro")

	require.NoError(t, store.ReplaceChunks(ctx, doc, testChunks(doc.ID, 3)))
	ids, err := store.GetPreviousChunkIDs(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID + "-0", doc.ID + "-1", doc.ID + "-2"}, ids)

	require.NoError(t, store.ReplaceChunks(ctx, doc, testChunks(doc.ID, 1)))
	chunks, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "docs", chunks[0].Metadata["doc_type"])
	assert.Equal(t, "hash", chunks[0].ContentHash)
	assert.Equal(t, "memory", chunks[0].Database)

	docs, chunkCount, err := store.CountSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, 1, chunkCount)
}

func TestReplaceChunks_RollsBackOnFailure(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	_, src := createTestSource(t, store)
	doc := testDocument(src, "https://docs.tatum.io/intro")
	require.NoError(t, store.ReplaceChunks(ctx, doc, testChunks(doc.ID, 2)))

	dup := testChunks(doc.ID, 2)
	dup[1].ID = dup[0].ID
	err := store.ReplaceChunks(ctx, doc, dup)

	var txErr *domain.CatalogTransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, doc.URI, txErr.DocumentURI)

	ids, err := store.GetPreviousChunkIDs(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID + "-0", doc.ID + "-1"}, ids)
}

func TestReplaceChunks_ConcurrentWriters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	_, src := createTestSource(t, store)

	const writers, rounds = 4, 50
	errs := make(chan error, writers*rounds)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				doc := testDocument(src, fmt.Sprintf("https://docs.tatum.io/w%d/%d", w, r))
				errs <- store.ReplaceChunks(ctx, doc, testChunks(doc.ID, 3))
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	docs, chunks, err := store.CountSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, writers*rounds, docs)
	assert.Equal(t, writers*rounds*3, chunks)
}

func TestReplaceChunks_UnknownSource(t *testing.T) {
	store := setupTestStore(t)
	doc := &domain.Document{ID: "d", SourceID: "nope", URI: "x"}

	err := store.ReplaceChunks(context.Background(), doc, nil)
	var txErr *domain.CatalogTransactionError
	require.True(t, errors.As(err, &txErr))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReplaceChunks_CancelledContext(t *testing.T) {
	store := setupTestStore(t)
	_, src := createTestSource(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.ReplaceChunks(ctx, testDocument(src, "a"), testChunks("doc-a", 1))
	var txErr *domain.CatalogTransactionError
	assert.True(t, errors.As(err, &txErr))
}

func TestListDocuments_OrderedByURI(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	_, src := createTestSource(t, store)

	published := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	b := testDocument(src, "b")
	b.PublishedAt = published
	require.NoError(t, store.ReplaceChunks(ctx, b, nil))
	require.NoError(t, store.ReplaceChunks(ctx, testDocument(src, "a"), nil))

	docs, err := store.ListDocuments(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].URI)
	assert.True(t, docs[0].PublishedAt.IsZero())
	assert.True(t, published.Equal(docs[1].PublishedAt))
	assert.Equal(t, "content of b", docs[1].Content)
}

func TestDeleteDocument_CascadesChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	_, src := createTestSource(t, store)
	doc := testDocument(src, "a")
	require.NoError(t, store.ReplaceChunks(ctx, doc, testChunks(doc.ID, 2)))

	assert.ErrorIs(t, store.DeleteSource(ctx, src.ID), domain.ErrHasChildren)

	require.NoError(t, store.DeleteDocument(ctx, doc.ID))
	ids, err := store.GetPreviousChunkIDs(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	docs, chunks, err := store.CountSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
	require.NoError(t, store.DeleteSource(ctx, src.ID))
}
