package services

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/storage/memory"
	vmemory "github.com/shelby-as-a-service/shelby/internal/adapters/driven/vectorstore/memory"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/normalisers"
	"github.com/shelby-as-a-service/shelby/internal/retry"
	"github.com/shelby-as-a-service/shelby/internal/tokenizer"
)

// --- Mock implementations shared by the service tests ---

const testDims = 4

// fastRetry keeps retry semantics without real waiting.
var fastRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

// fakeVector derives a deterministic vector from text.
func fakeVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		h := fnv.New32a()
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		v[i] = float32(h.Sum32()%1000)/1000 + 0.001
	}
	return v
}

// mockEmbedder implements driven.EmbeddingService.
type mockEmbedder struct {
	mu        sync.Mutex
	dims      int
	maxBatch  int
	maxTokens int
	calls     [][]string
	fail      func(texts []string) error
	wrongDims bool
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dims: testDims, maxBatch: 100}
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	fail := m.fail
	m.mu.Unlock()

	if fail != nil {
		if err := fail(texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		dims := m.dims
		if m.wrongDims {
			dims++
		}
		out[i] = fakeVector(t, dims)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return m.dims }
func (m *mockEmbedder) MaxBatchSize() int            { return m.maxBatch }
func (m *mockEmbedder) MaxItemTokens() int           { return m.maxTokens }
func (m *mockEmbedder) ModelName() string            { return "mock-embed" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockEmbedder) embeddedTexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += len(c)
	}
	return n
}

// flakyStore wraps the memory vector store with failure injection and an operation log.
type flakyStore struct {
	*vmemory.Store

	mu         sync.Mutex
	failUpsert func(records []domain.VectorRecord) error
	failDelete func(ids []string) error
	ops        []string
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: vmemory.New(testDims)}
}

func (s *flakyStore) Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) error {
	s.mu.Lock()
	fail := s.failUpsert
	for _, r := range records {
		s.ops = append(s.ops, "upsert:"+r.ID)
	}
	s.mu.Unlock()
	if fail != nil {
		if err := fail(records); err != nil {
			return err
		}
	}
	return s.Store.Upsert(ctx, namespace, records)
}

func (s *flakyStore) Delete(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	fail := s.failDelete
	for _, id := range ids {
		s.ops = append(s.ops, "delete:"+id)
	}
	s.mu.Unlock()
	if fail != nil {
		if err := fail(ids); err != nil {
			return err
		}
	}
	return s.Store.Delete(ctx, namespace, ids)
}

func (s *flakyStore) opIndex(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.ops {
		if o == op {
			return i
		}
	}
	return -1
}

// mockLoader implements driven.Loader.
type mockLoader struct {
	mu     sync.Mutex
	docs   []domain.RawDocument
	err    error
	loads  int
	onLoad func()
}

func (l *mockLoader) Kind() string                     { return "mock" }
func (l *mockLoader) Validate(_ context.Context) error { return nil }
func (l *mockLoader) Close() error                     { return nil }

func (l *mockLoader) Load(_ context.Context) ([]domain.RawDocument, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.onLoad != nil {
		l.onLoad()
	}
	if l.err != nil {
		return nil, l.err
	}
	return append([]domain.RawDocument(nil), l.docs...), nil
}

func (l *mockLoader) set(docs ...domain.RawDocument) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = docs
}

// watchingLoader adds change notifications to mockLoader.
type watchingLoader struct {
	*mockLoader
	events chan struct{}
}

func (l *watchingLoader) Watch(_ context.Context) (<-chan struct{}, error) {
	return l.events, nil
}

// mockFactory implements driven.LoaderFactory, keyed by source name.
type mockFactory struct {
	loaders map[string]driven.Loader
}

func (f *mockFactory) Create(source domain.Source) (driven.Loader, error) {
	if l, ok := f.loaders[source.Name]; ok {
		return l, nil
	}
	return nil, domain.ErrUnsupportedType
}

func (f *mockFactory) Register(_ string, _ driven.LoaderBuilder) {}

func (f *mockFactory) SupportedKinds() []string { return []string{"mock"} }

// mockLocker implements driven.SourceLocker.
type mockLocker struct {
	mu   sync.Mutex
	held map[string]bool
	lose map[string]context.CancelCauseFunc
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]bool), lose: make(map[string]context.CancelCauseFunc)}
}

func (l *mockLocker) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, nil, domain.ErrSourceLocked
	}
	l.held[key] = true
	held, cancel := context.WithCancelCause(ctx)
	l.lose[key] = cancel
	return held, func() {
		cancel(nil)
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		delete(l.lose, key)
	}, nil
}

func (l *mockLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	for {
		held, unlock, err := l.TryLock(ctx, key)
		if !errors.Is(err, domain.ErrSourceLocked) {
			return held, unlock, err
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// loseLock cancels the held context of key as a lost lease would.
func (l *mockLocker) loseLock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, ok := l.lose[key]; ok {
		cancel(domain.ErrLockLost)
	}
}

// harness wires an IngestService over in-memory adapters.
type harness struct {
	catalog  *memory.Catalog
	store    *flakyStore
	embedder *mockEmbedder
	loaders  map[string]*mockLoader
	factory  *mockFactory
	locker   *mockLocker
	domain   *domain.Domain
	sources  map[string]*domain.Source
	ingest   *IngestService
	index    *IndexService

	processor *Processor
	embed     *EmbeddingOrchestrator
	cfg       IngestConfig

	// named overrides the store returned for a database name.
	named map[string]*flakyStore
}

const testDomain = "tatum"

// newHarness creates a domain with the named sources. Chunking uses word
// tokens with goal 20 and max 30.
func newHarness(t *testing.T, sourceNames ...string) *harness {
	t.Helper()
	if len(sourceNames) == 0 {
		sourceNames = []string{"docs"}
	}
	ctx := context.Background()

	h := &harness{
		catalog:  memory.NewCatalog(),
		store:    newFlakyStore(),
		embedder: newMockEmbedder(),
		loaders:  make(map[string]*mockLoader),
		factory:  &mockFactory{loaders: make(map[string]driven.Loader)},
		locker:   newMockLocker(),
		sources:  make(map[string]*domain.Source),
	}

	h.domain = &domain.Domain{
		Name:      testDomain,
		Processor: domain.ProcessorSettings{MinLength: 1, GoalLength: 20, MaxLength: 30},
	}
	require.NoError(t, h.catalog.SaveDomain(ctx, h.domain))
	for _, name := range sourceNames {
		src := &domain.Source{
			DomainID:    h.domain.ID,
			Name:        name,
			URI:         "https://" + name + ".example.com",
			Loader:      domain.ProviderRef{Kind: "mock"},
			DocType:     "docs",
			BatchUpdate: true,
		}
		require.NoError(t, h.catalog.SaveSource(ctx, src))
		h.sources[name] = src
		l := &mockLoader{}
		h.loaders[name] = l
		h.factory.loaders[name] = l
	}

	tok := tokenizer.Words{}
	h.processor = NewProcessor(normalisers.Default(), tok, h.catalog, domain.ProcessorSettings{})
	h.embed = NewEmbeddingOrchestrator(h.embedder, tok, EmbeddingConfig{Concurrency: 2, Retry: fastRetry})
	h.cfg = IngestConfig{
		SourceConcurrency: 2,
		FetchRetry:        fastRetry,
		Sync:              SyncConfig{UpsertBatchSize: 3, DeleteBatchSize: 10, Concurrency: 2, Retry: fastRetry},
	}
	h.ingest = NewIngestService(h.catalog, h.factory, h.processor, h.embed, nil, h.stores, h.locker, h.cfg)
	registry := NewLoaderRegistry()
	registry.Register(domain.LoaderType{Kind: "mock"})
	h.index = NewIndexService(h.catalog, h.stores, h.locker, registry, h.cfg.Sync)
	return h
}

func (h *harness) stores(database string) (driven.VectorStore, error) {
	if st, ok := h.named[database]; ok {
		return st, nil
	}
	return h.store, nil
}

// withSparse rebuilds the ingest service with a sparse encoder.
func (h *harness) withSparse(enc driven.SparseEncoder) {
	h.ingest = NewIngestService(h.catalog, h.factory, h.processor, h.embed, enc, h.stores, h.locker, h.cfg)
}

// words builds a text of n distinct words with the given prefix.
func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix + strconv.Itoa(i)
	}
	return strings.Join(parts, " ")
}

func rawDoc(uri, text string) domain.RawDocument {
	return domain.RawDocument{URI: uri, MIMEType: "text/plain", Content: []byte(text)}
}

// catalogChunkIDs returns every chunk ID recorded for a source, sorted.
func (h *harness) catalogChunkIDs(t *testing.T, source string) []string {
	t.Helper()
	ctx := context.Background()
	docs, err := h.catalog.ListDocuments(ctx, h.sources[source].ID)
	require.NoError(t, err)
	var ids []string
	for _, d := range docs {
		chunkIDs, err := h.catalog.GetPreviousChunkIDs(ctx, d.ID)
		require.NoError(t, err)
		ids = append(ids, chunkIDs...)
	}
	sort.Strings(ids)
	return ids
}

// requireCatalogMatchesStore asserts the 1:1 catalog and vector store agreement.
func (h *harness) requireCatalogMatchesStore(t *testing.T) {
	t.Helper()
	var ids []string
	for name := range h.sources {
		ids = append(ids, h.catalogChunkIDs(t, name)...)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		ids = []string{}
	}
	require.Equal(t, ids, h.store.IDs(testDomain))
}

var errBoom = errors.New("boom")
