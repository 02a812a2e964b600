package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// fakeQdrant is a tiny in-memory Qdrant with one collection namespace.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any // collection -> point id -> point
	creates     int
	lastSearch  map[string]any
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *Store) {
	t.Helper()
	f := &fakeQdrant{collections: make(map[string]map[string]map[string]any)}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	store, err := New(Config{URL: server.URL, Dimensions: 2, RequestsPerSecond: 1000})
	require.NoError(t, err)
	return f, store
}

func (f *fakeQdrant) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	name := parts[1]
	coll, exists := f.collections[name]
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !exists {
			http.Error(w, `{"status":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points_count": len(coll)}})
	case len(parts) == 2 && r.Method == http.MethodPut:
		f.creates++
		f.collections[name] = make(map[string]map[string]any)
		_, _ = w.Write([]byte(`{"result":true}`))
	case len(parts) == 2 && r.Method == http.MethodDelete:
		delete(f.collections, name)
		_, _ = w.Write([]byte(`{"result":true}`))
	case !exists:
		http.Error(w, `{"status":"not found"}`, http.StatusNotFound)
	case parts[len(parts)-1] == "points" && r.Method == http.MethodPut:
		for _, p := range body["points"].([]any) {
			pt := p.(map[string]any)
			coll[pt["id"].(string)] = pt
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	case parts[len(parts)-1] == "delete":
		for _, id := range body["points"].([]any) {
			delete(coll, id.(string))
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	case parts[len(parts)-1] == "search":
		f.lastSearch = body
		var result []map[string]any
		for id, pt := range coll {
			result = append(result, map[string]any{"id": id, "score": 0.5, "payload": pt["payload"]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	default:
		http.Error(w, "unexpected", http.StatusBadRequest)
	}
}

func TestNew_RequiresDimensions(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("doc-1"), PointID("doc-1"))
	assert.NotEqual(t, PointID("doc-1"), PointID("doc-2"))
}

func TestUpsertQueryDelete(t *testing.T) {
	f, store := newFakeQdrant(t)
	ctx := context.Background()

	records := []domain.VectorRecord{
		{ID: "doc-0", Values: []float32{1, 0}, Metadata: map[string]string{"doc_type": "api"}},
		{ID: "doc-1", Values: []float32{0, 1}, Metadata: map[string]string{"doc_type": "api"}},
	}
	require.NoError(t, store.Upsert(ctx, "tatum", records))
	require.NoError(t, store.Upsert(ctx, "tatum", records[:1]))
	assert.Equal(t, 1, f.creates)

	stats, err := store.Stats(ctx, "tatum")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.VectorCount)

	matches, err := store.Query(ctx, "tatum", domain.VectorQuery{
		Vector: []float32{1, 0},
		TopK:   5,
		Filter: map[string]string{"doc_type": "api"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	ids := []string{matches[0].ID, matches[1].ID}
	assert.ElementsMatch(t, []string{"doc-0", "doc-1"}, ids)
	assert.NotContains(t, matches[0].Metadata, payloadChunkID)
	assert.Equal(t, "api", matches[0].Metadata["doc_type"])
	assert.Equal(t, []any{map[string]any{"key": "doc_type", "match": map[string]any{"value": "api"}}},
		f.lastSearch["filter"].(map[string]any)["must"])

	require.NoError(t, store.Delete(ctx, "tatum", []string{"doc-0"}))
	stats, err = store.Stats(ctx, "tatum")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorCount)
}

func TestMissingCollection(t *testing.T) {
	_, store := newFakeQdrant(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx, "nothing")
	require.NoError(t, err)
	assert.Zero(t, stats.VectorCount)

	matches, err := store.Query(ctx, "nothing", domain.VectorQuery{Vector: []float32{1, 0}, TopK: 1})
	require.NoError(t, err)
	assert.Empty(t, matches)

	assert.NoError(t, store.Delete(ctx, "nothing", []string{"a"}))
	assert.NoError(t, store.DeleteNamespace(ctx, "nothing"))
}

func TestDeleteNamespace_RecreatesOnNextUpsert(t *testing.T) {
	f, store := newFakeQdrant(t)
	ctx := context.Background()
	rec := []domain.VectorRecord{{ID: "a-0", Values: []float32{1, 1}}}

	require.NoError(t, store.Upsert(ctx, "tatum", rec))
	require.NoError(t, store.DeleteNamespace(ctx, "tatum"))
	require.NoError(t, store.Upsert(ctx, "tatum", rec))
	assert.Equal(t, 2, f.creates)
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	_, store := newFakeQdrant(t)
	err := store.Upsert(context.Background(), "tatum", []domain.VectorRecord{{ID: "a", Values: []float32{1}}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}
