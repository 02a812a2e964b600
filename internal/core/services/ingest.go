package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
	"github.com/shelby-as-a-service/shelby/internal/logger"
	"github.com/shelby-as-a-service/shelby/internal/retry"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// StoreResolver returns the vector store registered under a database name.
// An empty name selects the default store.
type StoreResolver func(database string) (driven.VectorStore, error)

// IngestConfig controls concurrency and retries of ingestion runs.
type IngestConfig struct {
	// SourceConcurrency is the number of sources of a domain ingested in parallel.
	SourceConcurrency int

	// FetchRetry applies to each source load.
	FetchRetry retry.Config

	// Sync configures vector store writes.
	Sync SyncConfig
}

// DefaultIngestConfig returns two sources in parallel with default retries.
// A whole-source load may crawl many pages, so its attempt timeout is long.
func DefaultIngestConfig() IngestConfig {
	fetch := retry.DefaultConfig()
	fetch.AttemptTimeout = 15 * time.Minute
	return IngestConfig{
		SourceConcurrency: 2,
		FetchRetry:        fetch,
		Sync:              DefaultSyncConfig(),
	}
}

// IngestService drives loaders, processing, embedding, vector store sync and
// catalog reconciliation for sources and domains.
type IngestService struct {
	catalog   driven.Catalog
	loaders   driven.LoaderFactory
	processor *Processor
	embedder  *EmbeddingOrchestrator
	sparse    driven.SparseEncoder
	stores    StoreResolver
	locker    driven.SourceLocker
	cfg       IngestConfig
	now       func() time.Time
}

// NewIngestService creates an ingest service. sparse may be nil to write dense vectors only.
func NewIngestService(
	catalog driven.Catalog,
	loaders driven.LoaderFactory,
	processor *Processor,
	embedder *EmbeddingOrchestrator,
	sparse driven.SparseEncoder,
	stores StoreResolver,
	locker driven.SourceLocker,
	cfg IngestConfig,
) *IngestService {
	if cfg.SourceConcurrency < 1 {
		cfg.SourceConcurrency = 1
	}
	return &IngestService{
		catalog:   catalog,
		loaders:   loaders,
		processor: processor,
		embedder:  embedder,
		sparse:    sparse,
		stores:    stores,
		locker:    locker,
		cfg:       cfg,
		now:       time.Now,
	}
}

// IngestSource ingests one source of a domain.
func (s *IngestService) IngestSource(
	ctx context.Context,
	domainName, sourceName string,
	opts driving.IngestOptions,
) (*domain.IngestSummary, error) {
	d, err := s.catalog.GetDomain(ctx, domainName)
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", domainName, err)
	}
	src, err := s.catalog.GetSource(ctx, domainName, sourceName)
	if err != nil {
		return nil, fmt.Errorf("get source %s/%s: %w", domainName, sourceName, err)
	}
	return s.ingestSource(ctx, d, src, opts)
}

// IngestDomain ingests the batch-update sources of a domain in parallel.
// Per-source errors are collected in the summary.
func (s *IngestService) IngestDomain(ctx context.Context, domainName string, opts driving.IngestOptions) (*domain.DomainSummary, error) {
	d, err := s.catalog.GetDomain(ctx, domainName)
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", domainName, err)
	}

	var sources []domain.Source
	for _, src := range d.Sources {
		if src.BatchUpdate {
			sources = append(sources, src)
		}
	}
	logger.Section(fmt.Sprintf("Domain %s: %d sources", d.Name, len(sources)))

	summaries := make([]*domain.IngestSummary, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(s.cfg.SourceConcurrency)
	for i := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			summaries[i], errs[i] = s.ingestSource(ctx, d, &sources[i], opts)
			return nil
		})
	}
	_ = g.Wait()

	out := &domain.DomainSummary{Domain: d.Name}
	for i := range sources {
		if summaries[i] != nil {
			out.Sources = append(out.Sources, summaries[i])
		}
		if errs[i] != nil {
			out.Errors = append(out.Errors, fmt.Errorf("source %s: %w", sources[i].Name, errs[i]))
		}
	}
	return out, ctx.Err()
}

// IngestAll ingests every domain in name order.
func (s *IngestService) IngestAll(ctx context.Context, opts driving.IngestOptions) ([]*domain.DomainSummary, error) {
	domains, err := s.catalog.ListDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}

	var out []*domain.DomainSummary
	for _, d := range domains {
		summary, err := s.IngestDomain(ctx, d.Name, opts)
		if summary != nil {
			out = append(out, summary)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// ingestSource runs the pipeline for one source. Errors returned here stop
// the source; everything else is isolated and recorded in the summary.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (s *IngestService) ingestSource(
	ctx context.Context,
	d *domain.Domain,
	src *domain.Source,
	opts driving.IngestOptions,
) (summary *domain.IngestSummary, err error) {
	started := s.now()
	summary = &domain.IngestSummary{Domain: d.Name, Source: src.Name, Started: started}
	defer func() { summary.Duration = s.now().Sub(started) }()

	log := logger.With("domain", d.Name, "source", src.Name, "namespace", d.Namespace())

	if !opts.Force && !src.DueForUpdate(started) {
		log.Infof("Updated %s ago, skipping", started.Sub(src.LastUpdated).Round(time.Second))
		summary.Skipped = true
		return summary, nil
	}

	lock := s.locker.TryLock
	if opts.Wait {
		lock = s.locker.Lock
	}
	held, unlock, err := lock(ctx, src.Key(d.Name))
	if err != nil {
		summary.AddFailure(domain.StageLock, src.Name, err)
		return summary, err
	}
	defer unlock()
	defer func() {
		lost := context.Cause(held)
		if err == nil || !errors.Is(lost, domain.ErrLockLost) {
			return
		}
		summary.AddFailure(domain.StageLock, src.Name, lost)
		err = fmt.Errorf("%w: %w", lost, err)
	}()
	ctx = held

	logger.Section(fmt.Sprintf("Ingesting %s/%s", d.Name, src.Name))

	loaderSource := *src
	if loaderSource.Loader.IsZero() {
		loaderSource.Loader = d.Loader
	}
	loader, err := s.loaders.Create(loaderSource)
	if err != nil {
		summary.AddFailure(domain.StageValidate, src.Name, err)
		return summary, err
	}
	defer loader.Close()

	if err := loader.Validate(ctx); err != nil {
		summary.AddFailure(domain.StageValidate, src.Name, err)
		return summary, err
	}

	database := src.Database
	if database == "" {
		database = d.Database
	}
	store, err := s.stores(database)
	if err != nil {
		summary.AddFailure(domain.StageValidate, src.Name, err)
		return summary, err
	}

	raws, err := retry.DoWithResult(ctx, s.cfg.FetchRetry, func(ctx context.Context) ([]domain.RawDocument, error) {
		docs, err := loader.Load(ctx)
		if err != nil && domain.IsFatal(err) {
			return nil, retry.Permanent(err)
		}
		return docs, err
	})
	if err != nil {
		attempts := 1
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
		}
		summary.AddFailure(domain.StageFetch, src.Name, err)
		return summary, &domain.SourceFetchError{Source: src.Name, Attempts: attempts, Err: err}
	}
	summary.DocumentsLoaded = len(raws)

	processed, err := s.processor.Process(ctx, ProcessInput{
		Domain:    d,
		Source:    src,
		Documents: raws,
		Reembed:   opts.Reembed,
	})
	if err != nil {
		return summary, err
	}
	summary.DocumentsTooSmall = processed.TooSmall
	summary.DocumentsPruned = processed.Pruned
	summary.DocumentsFailed = len(processed.Failures)
	summary.Failures = append(summary.Failures, processed.Failures...)
	summary.Tokens = processed.Tokens

	records, embedFailed := s.embed(ctx, processed, summary)

	syncRes := NewSynchronizer(store, s.cfg.Sync).Sync(ctx, d.Namespace(), records, processed.StaleIDs())
	for _, e := range syncRes.Errors {
		stage := domain.StageUpsert
		var writeErr *domain.VectorStoreWriteError
		if errors.As(e, &writeErr) && writeErr.Op == OpDelete {
			stage = domain.StageDelete
		}
		summary.AddFailure(stage, d.Namespace(), e)
	}
	summary.ChunksUpserted = syncRes.Upserted()
	summary.ChunksDeleted = syncRes.Deleted()
	summary.ChunksFailed = len(embedFailed) + syncRes.Failed()
	summary.FailedIDs = append(summary.FailedIDs, embedFailed...)
	summary.FailedIDs = append(summary.FailedIDs, syncRes.FailedIDs...)
	summary.FailedIDs = append(summary.FailedIDs, syncRes.FailedDeleteIDs...)

	s.reconcile(ctx, processed, syncRes, summary)

	if lost := context.Cause(ctx); errors.Is(lost, domain.ErrLockLost) {
		summary.AddFailure(domain.StageLock, src.Name, lost)
	}

	if summary.OK() {
		if err := s.catalog.MarkSourceUpdated(context.WithoutCancel(ctx), src.ID, s.now()); err != nil {
			summary.AddFailure(domain.StageCatalog, src.Name, err)
		}
	} else {
		log.Warnf("Finished with %d failures; not marking updated", len(summary.Failures))
	}

	log.Infow("Source ingested",
		"processed", summary.DocumentsProcessed,
		"upserted", summary.ChunksUpserted,
		"unchanged", summary.ChunksUnchanged,
		"deleted", summary.ChunksDeleted,
		"failed", summary.ChunksFailed)
	return summary, nil
}

// embed computes vectors for every changed chunk and returns the records to
// upsert plus the IDs that failed to embed.
func (s *IngestService) embed(
	ctx context.Context,
	processed *ProcessResult,
	summary *domain.IngestSummary,
) ([]domain.VectorRecord, []string) {
	var (
		items  []EmbedItem
		chunks []domain.Chunk
	)
	for _, pd := range processed.Documents {
		if pd.Pruned || pd.Dropped {
			continue
		}
		summary.DocumentsProcessed++
		summary.ChunksUnchanged += len(pd.Unchanged)
		for _, ch := range pd.Changed() {
			items = append(items, EmbedItem{ID: ch.ID, Text: EmbeddingText(ch.Content, pd.Document.Title)})
			chunks = append(chunks, ch)
		}
	}
	if len(items) == 0 {
		return nil, nil
	}

	res := s.embedder.Embed(ctx, items)
	summary.Failures = append(summary.Failures, res.Failures...)

	var (
		records []domain.VectorRecord
		texts   []string
		failed  []string
	)
	for i, ch := range chunks {
		if res.Failed(i) {
			failed = append(failed, ch.ID)
			continue
		}
		meta := make(map[string]string, len(ch.Metadata)+1)
		for k, v := range ch.Metadata {
			meta[k] = v
		}
		meta[domain.MetaContent] = ch.Content
		records = append(records, domain.VectorRecord{
			ID:         ch.ID,
			DocumentID: ch.DocumentID,
			Values:     res.Vectors[i],
			Metadata:   meta,
		})
		texts = append(texts, items[i].Text)
	}

	if s.sparse != nil && len(records) > 0 {
		for i, sv := range s.sparse.EncodeDocuments(texts) {
			records[i].Sparse = sv
		}
	}
	return records, failed
}

// reconcile writes each document's catalog rows to match what the vector
// store now holds: new chunks confirmed written or unchanged, plus old rows
// whose vectors are still present.
func (s *IngestService) reconcile(
	ctx context.Context,
	processed *ProcessResult,
	syncRes *domain.SyncResult,
	summary *domain.IngestSummary,
) {
	upserted := toSet(syncRes.UpsertedIDs)
	deleted := toSet(syncRes.DeletedIDs)
	// A started transaction must complete or roll back even on cancellation.
	catalogCtx := context.WithoutCancel(ctx)

	for _, pd := range processed.Documents {
		if pd.Idle() {
			continue
		}
		rows := catalogRows(pd, upserted, deleted)

		var err error
		if (pd.Pruned || pd.Dropped) && len(rows) == 0 {
			err = s.catalog.DeleteDocument(catalogCtx, pd.Document.ID)
		} else {
			err = s.catalog.ReplaceChunks(catalogCtx, &pd.Document, rows)
		}
		if err != nil {
			logger.Error("Catalog update for %s failed: %v", pd.Document.URI, err)
			var txErr *domain.CatalogTransactionError
			if !errors.As(err, &txErr) {
				err = &domain.CatalogTransactionError{DocumentURI: pd.Document.URI, Err: err}
			}
			summary.AddFailure(domain.StageCatalog, pd.Document.URI, err)
		}
	}
}

// catalogRows computes the rows a document keeps after a sync.
func catalogRows(pd *ProcessedDocument, upserted, deleted map[string]bool) []domain.Chunk {
	previous := make(map[string]domain.Chunk, len(pd.Previous))
	for _, ch := range pd.Previous {
		previous[ch.ID] = ch
	}

	var rows []domain.Chunk
	current := make(map[string]bool, len(pd.Document.Chunks))
	for _, ch := range pd.Document.Chunks {
		current[ch.ID] = true
		switch {
		case pd.Unchanged[ch.ID], upserted[ch.ID]:
			rows = append(rows, ch)
		default:
			// The write failed; an older vector under the same ID is still stored.
			if old, ok := previous[ch.ID]; ok {
				rows = append(rows, old)
			}
		}
	}
	for _, old := range pd.Previous {
		if !current[old.ID] && !deleted[old.ID] {
			rows = append(rows, old)
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
	return rows
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
