package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/ai"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/config/file"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/lock/local"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/lock/redis"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/storage/memory"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/storage/sqlite"
	"github.com/shelby-as-a-service/shelby/internal/adapters/driving/cli"
	"github.com/shelby-as-a-service/shelby/internal/connectors"
	"github.com/shelby-as-a-service/shelby/internal/connectors/github"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/core/services"
	"github.com/shelby-as-a-service/shelby/internal/logger"
	"github.com/shelby-as-a-service/shelby/internal/normalisers"
	"github.com/shelby-as-a-service/shelby/internal/sparse"
	"github.com/shelby-as-a-service/shelby/internal/tokenizer"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(f func() error) { *c = append(*c, f) }

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// bootstrap loads the configuration and wires the services. Light commands
// get the config store and the loader registry only.
func bootstrap(ctx context.Context, configPath string, full bool) (*cli.Services, error) {
	if configPath == "" {
		p, err := file.DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("locating config: %w", err)
		}
		configPath = p
	}

	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return nil, err
	}
	s := &cli.Services{
		Config:        store,
		Loaders:       services.NewLoaderRegistry(),
		WatchDebounce: services.DefaultWatchDebounce,
	}
	if !full {
		return s, nil
	}

	cfg, err := file.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	var cl closers
	fail := func(err error) (*cli.Services, error) {
		_ = cl.close()
		return nil, err
	}

	catalog, err := openCatalog(cfg)
	if err != nil {
		return fail(err)
	}
	cl.add(catalog.Close)

	locker, err := openLocker(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if c, ok := locker.(interface{ Close() error }); ok {
		cl.add(c.Close)
	}

	embedSvc, err := ai.CreateEmbeddingService(cfg.Embedding)
	if err != nil {
		return fail(err)
	}
	cl.add(embedSvc.Close)

	querySvc, err := ai.WithQueryCache(embedSvc, cfg.Embedding.CacheSize)
	if err != nil {
		return fail(err)
	}

	stores := ai.NewStoreRegistry(cfg.VectorStores, cfg.DefaultStore(), embedSvc.Dimensions())
	cl.add(stores.Close)

	tok, err := tokenizer.Resolve(cfg.Processor.Tokenizer)
	if err != nil {
		return fail(fmt.Errorf("tokenizer %q: %w", cfg.Processor.Tokenizer, err))
	}

	var enc driven.SparseEncoder
	if cfg.Ingest.Sparse {
		enc = sparse.New()
	}

	factory := connectors.NewDefaultFactory(connectors.Options{
		GitHub: github.ClientOptions{Token: file.Secret(cfg.GitHub.TokenEnv)},
	})

	embedCfg := services.DefaultEmbeddingConfig()
	embedCfg.BatchSize = cfg.Embedding.BatchSize
	if cfg.Embedding.Concurrency > 0 {
		embedCfg.Concurrency = cfg.Embedding.Concurrency
	}

	syncCfg := services.DefaultSyncConfig()
	syncCfg.UpsertBatchSize = cfg.Ingest.UpsertBatchSize
	syncCfg.DeleteBatchSize = cfg.Ingest.DeleteBatchSize
	syncCfg.Concurrency = cfg.Ingest.SyncConcurrency

	ingestCfg := services.DefaultIngestConfig()
	ingestCfg.SourceConcurrency = cfg.Ingest.SourceConcurrency
	ingestCfg.FetchRetry.MaxAttempts = cfg.Ingest.FetchAttempts
	if cfg.Ingest.FetchTimeout.Duration > 0 {
		ingestCfg.FetchRetry.AttemptTimeout = cfg.Ingest.FetchTimeout.Duration
	}
	ingestCfg.Sync = syncCfg

	processor := services.NewProcessor(normalisers.Default(), tok, catalog, cfg.ProcessorSettings())
	embedder := services.NewEmbeddingOrchestrator(embedSvc, tok, embedCfg)

	ingest := services.NewIngestService(catalog, factory, processor, embedder, enc, stores.Resolve, locker, ingestCfg)

	s.Ingest = ingest
	s.Index = services.NewIndexService(catalog, stores.Resolve, locker, s.Loaders, syncCfg)
	s.Query = services.NewQueryService(catalog,
		services.NewEmbeddingOrchestrator(querySvc, tok, embedCfg), stores.Resolve)
	s.Scheduler = services.NewScheduler(ingest, cfg.Schedule.Interval.Duration, logRun)
	s.Close = cl.close
	return s, nil
}

func openCatalog(cfg *file.Config) (driven.Catalog, error) {
	if cfg.Catalog.Driver == "memory" {
		logger.Warn("Using the in-memory catalog; nothing will be persisted")
		return memory.NewCatalog(), nil
	}
	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	return store, nil
}

func openLocker(ctx context.Context, cfg *file.Config) (driven.SourceLocker, error) {
	if cfg.Lock.Driver == "redis" {
		l, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Lock.RedisAddr,
			Password: file.Secret(cfg.Lock.RedisPasswordEnv),
			DB:       cfg.Lock.RedisDB,
			TTL:      cfg.Lock.TTL.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("opening redis locks: %w", err)
		}
		return l, nil
	}
	l, err := local.New(filepath.Join(cfg.DataDir, "locks"))
	if err != nil {
		return nil, fmt.Errorf("opening lock directory: %w", err)
	}
	return l, nil
}

// logRun reports a scheduled run.
func logRun(summaries []*domain.DomainSummary, err error) {
	if err != nil {
		logger.Error("Scheduled run failed: %v", err)
	}
	for _, d := range summaries {
		t := d.Totals()
		logger.Info("Domain %s: %d documents, %d upserted, %d deleted, %d failed in %s",
			d.Domain, t.DocumentsProcessed, t.ChunksUpserted, t.ChunksDeleted, t.ChunksFailed,
			t.Duration.Round(time.Second))
		for _, e := range d.Errors {
			logger.Warn("Domain %s: %v", d.Domain, e)
		}
	}
}
