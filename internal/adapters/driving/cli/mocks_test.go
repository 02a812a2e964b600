package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/storage/memory"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
)

type mockIngestService struct {
	lastOpts     driving.IngestOptions
	sourceErr    error
	domainResult *domain.DomainSummary
	watchCalls   int
	watchDelay   time.Duration
}

func (m *mockIngestService) IngestSource(_ context.Context, d, s string, opts driving.IngestOptions) (*domain.IngestSummary, error) {
	m.lastOpts = opts
	if m.sourceErr != nil {
		return nil, m.sourceErr
	}
	return &domain.IngestSummary{
		Domain:             d,
		Source:             s,
		DocumentsLoaded:    3,
		DocumentsProcessed: 2,
		ChunksUpserted:     5,
		ChunksUnchanged:    1,
		Tokens:             domain.TokenStats{Count: 6, Min: 100, Max: 300, Total: 1200},
	}, nil
}

func (m *mockIngestService) IngestDomain(_ context.Context, d string, opts driving.IngestOptions) (*domain.DomainSummary, error) {
	m.lastOpts = opts
	if m.domainResult != nil {
		return m.domainResult, nil
	}
	return &domain.DomainSummary{
		Domain: d,
		Sources: []*domain.IngestSummary{
			{Domain: d, Source: "docs", DocumentsProcessed: 4, ChunksUpserted: 8},
			{Domain: d, Source: "blog", Skipped: true},
		},
	}, nil
}

func (m *mockIngestService) IngestAll(ctx context.Context, opts driving.IngestOptions) ([]*domain.DomainSummary, error) {
	a, _ := m.IngestDomain(ctx, "alpha", opts)
	return []*domain.DomainSummary{a}, nil
}

func (m *mockIngestService) Watch(ctx context.Context, d, s string, debounce time.Duration,
	onPass func(*domain.IngestSummary, error)) error {
	m.watchCalls++
	m.watchDelay = debounce
	onPass(&domain.IngestSummary{Domain: d, Source: s, ChunksUpserted: 2}, nil)
	return context.Canceled
}

type mockIndexService struct {
	applied  []domain.Domain
	domains  []domain.Domain
	cleared  []string
	clearErr error
}

func (m *mockIndexService) Apply(_ context.Context, domains []domain.Domain) error {
	m.applied = domains
	return nil
}

func (m *mockIndexService) List(_ context.Context) ([]domain.Domain, error) {
	return m.domains, nil
}

func (m *mockIndexService) Stats(_ context.Context, name string) (*driving.DomainStats, error) {
	if name != "alpha" {
		return nil, domain.ErrNotFound
	}
	return &driving.DomainStats{
		Domain:    "alpha",
		Namespace: "alpha",
		Vectors:   10,
		Chunks:    12,
		Sources:   []driving.SourceStats{{Name: "docs", Documents: 3, Chunks: 12}},
	}, nil
}

func (m *mockIndexService) ClearSource(_ context.Context, d, s string) []domain.ClearResult {
	m.cleared = append(m.cleared, d+"/"+s)
	return []domain.ClearResult{{Unit: d + "/" + s, VectorsDeleted: 7, Err: m.clearErr}}
}

func (m *mockIndexService) ClearDomain(_ context.Context, d string) []domain.ClearResult {
	m.cleared = append(m.cleared, d)
	return []domain.ClearResult{
		{Unit: d + "/docs", VectorsDeleted: 4},
		{Unit: d, Err: m.clearErr},
	}
}

type mockQueryService struct {
	last driving.QueryRequest
}

func (m *mockQueryService) Query(_ context.Context, req driving.QueryRequest) ([]domain.RetrievalDoc, error) {
	m.last = req
	if req.Text == "nothing" {
		return nil, nil
	}
	return []domain.RetrievalDoc{
		{ChunkID: "c1", Content: "Install   with\n\nbrew.", Title: "Install", URI: "https://x/install", Score: 0.91, Rank: 1},
		{ChunkID: "c2", Content: "Configure it.", Title: "Config", Score: 0.5, Rank: 2},
	}, nil
}

type mockLoaderRegistry struct{}

func (mockLoaderRegistry) List() []domain.LoaderType {
	return []domain.LoaderType{{
		Kind:        "directory",
		Name:        "Local directory",
		Description: "Files under a directory",
		ConfigKeys:  []domain.ConfigKey{{Key: "path", Description: "root directory", Required: true}},
	}}
}

func (mockLoaderRegistry) Get(_ string) (*domain.LoaderType, error) {
	return nil, domain.ErrUnsupportedType
}

func (mockLoaderRegistry) ValidateSource(_ *domain.Domain, _ *domain.Source) error { return nil }

type mockScheduler struct {
	started bool
}

func (m *mockScheduler) Start(_ context.Context) error {
	m.started = true
	return context.Canceled
}

func (m *mockScheduler) Stop() error { return nil }

type testServices struct {
	ingest *mockIngestService
	index  *mockIndexService
	query  *mockQueryService
	sched  *mockScheduler
	config *memory.ConfigStore
}

// setupTestServices installs mocks and resets flag state. The returned
// function restores the previous globals.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		ingest: &mockIngestService{},
		index:  &mockIndexService{},
		query:  &mockQueryService{},
		sched:  &mockScheduler{},
		config: memory.NewConfigStore(map[string]any{"embedding.provider": "openai"}),
	}

	prev := Services{
		Ingest:        ingestService,
		Index:         indexService,
		Query:         queryService,
		Loaders:       loaderRegistry,
		Scheduler:     scheduler,
		Config:        configStore,
		WatchDebounce: watchDebounce,
		Close:         closeServices,
	}
	prevInput, prevInteractive := confirmInput, isInteractive

	SetServices(&Services{
		Ingest:    ts.ingest,
		Index:     ts.index,
		Query:     ts.query,
		Loaders:   mockLoaderRegistry{},
		Scheduler: ts.sched,
		Config:    ts.config,
	})
	resetFlags()

	return ts, func() {
		SetServices(&prev)
		confirmInput, isInteractive = prevInput, prevInteractive
		resetFlags()
	}
}

func resetFlags() {
	ingestForce, ingestReembed = false, false
	clearYes = false
	queryTopK, queryDocType, queryJSON = 0, "", false
	watchDebounceFlag = 0
}

// runCLI executes the root command and returns its combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// answer makes confirm read from an interactive terminal typing s.
func answer(s string) {
	confirmInput = strings.NewReader(s)
	isInteractive = func() bool { return true }
}
