package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// IndexService manages domains and sources and clears them bottom-up.
type IndexService struct {
	catalog driven.Catalog
	stores  StoreResolver
	locker  driven.SourceLocker
	loaders driving.LoaderRegistry
	sync    SyncConfig
}

// NewIndexService creates an index service. loaders may be nil to skip
// loader validation on Apply.
func NewIndexService(
	catalog driven.Catalog,
	stores StoreResolver,
	locker driven.SourceLocker,
	loaders driving.LoaderRegistry,
	sync SyncConfig,
) *IndexService {
	return &IndexService{catalog: catalog, stores: stores, locker: locker, loaders: loaders, sync: sync}
}

// Apply creates or updates domains and their sources by name.
// Sources absent from the description are left untouched.
func (s *IndexService) Apply(ctx context.Context, domains []domain.Domain) error {
	for i := range domains {
		d := domains[i]
		sources := d.Sources
		if err := validateSettings(d.Processor); err != nil {
			return fmt.Errorf("domain %s: %w", d.Name, err)
		}
		if err := s.catalog.SaveDomain(ctx, &d); err != nil {
			return fmt.Errorf("save domain %s: %w", d.Name, err)
		}
		for j := range sources {
			src := sources[j]
			src.DomainID = d.ID
			if err := validateSettings(src.Processor); err != nil {
				return fmt.Errorf("source %s/%s: %w", d.Name, src.Name, err)
			}
			if err := s.validateLoader(&d, &src); err != nil {
				return fmt.Errorf("source %s/%s: %w", d.Name, src.Name, err)
			}
			if err := s.catalog.SaveSource(ctx, &src); err != nil {
				return fmt.Errorf("save source %s/%s: %w", d.Name, src.Name, err)
			}
		}
		logger.Info("Applied domain %s with %d sources", d.Name, len(sources))
	}
	return nil
}

// validateSettings checks fully specified chunk bounds. Settings that leave
// a bound to the defaults are validated after merging at ingest time.
func validateSettings(p domain.ProcessorSettings) error {
	if p.GoalLength == 0 || p.MaxLength == 0 {
		return nil
	}
	return p.Validate()
}

func (s *IndexService) validateLoader(d *domain.Domain, src *domain.Source) error {
	if s.loaders == nil {
		return nil
	}
	return s.loaders.ValidateSource(d, src)
}

// List returns all domains with their sources.
func (s *IndexService) List(ctx context.Context) ([]domain.Domain, error) {
	return s.catalog.ListDomains(ctx)
}

// Stats reports catalog and vector counts for a domain.
func (s *IndexService) Stats(ctx context.Context, domainName string) (*driving.DomainStats, error) {
	d, err := s.catalog.GetDomain(ctx, domainName)
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", domainName, err)
	}
	stats := &driving.DomainStats{Domain: d.Name, Namespace: d.Namespace()}

	for _, src := range d.Sources {
		docs, chunks, err := s.catalog.CountSource(ctx, src.ID)
		if err != nil {
			return nil, fmt.Errorf("count source %s: %w", src.Name, err)
		}
		stats.Chunks += chunks
		stats.Sources = append(stats.Sources, driving.SourceStats{
			Name:        src.Name,
			Documents:   docs,
			Chunks:      chunks,
			LastUpdated: src.LastUpdated,
		})
	}

	databases := []string{d.Database}
	for _, src := range d.Sources {
		if src.Database != "" {
			databases = append(databases, src.Database)
		}
	}
	// Names can alias one store, so count each resolved store once.
	counted := make(map[driven.VectorStore]bool, len(databases))
	for _, name := range databases {
		store, err := s.stores(name)
		if err != nil {
			return nil, err
		}
		if counted[store] {
			continue
		}
		counted[store] = true
		ns, err := store.Stats(ctx, d.Namespace())
		if err != nil {
			return nil, fmt.Errorf("namespace stats: %w", err)
		}
		stats.Vectors += ns.VectorCount
	}
	return stats, nil
}

// ClearSource deletes every vector of a source, then its documents and the
// source row. A document whose vectors could not all be deleted keeps the
// rows of the remaining vectors, and the source row is kept with it.
func (s *IndexService) ClearSource(ctx context.Context, domainName, sourceName string) []domain.ClearResult {
	unit := domainName + "/" + sourceName
	d, err := s.catalog.GetDomain(ctx, domainName)
	if err != nil {
		return []domain.ClearResult{{Unit: unit, Err: err}}
	}
	src, err := s.catalog.GetSource(ctx, domainName, sourceName)
	if err != nil {
		return []domain.ClearResult{{Unit: unit, Err: err}}
	}
	return s.clearSource(ctx, d, src)
}

func (s *IndexService) clearSource(ctx context.Context, d *domain.Domain, src *domain.Source) []domain.ClearResult {
	unit := d.Name + "/" + src.Name

	held, unlock, err := s.locker.TryLock(ctx, src.Key(d.Name))
	if err != nil {
		return []domain.ClearResult{{Unit: unit, Err: err}}
	}
	defer unlock()
	ctx = held

	database := src.Database
	if database == "" {
		database = d.Database
	}
	store, err := s.stores(database)
	if err != nil {
		return []domain.ClearResult{{Unit: unit, Err: err}}
	}
	docs, err := s.catalog.ListDocuments(ctx, src.ID)
	if err != nil {
		return []domain.ClearResult{{Unit: unit, Err: err}}
	}

	syncer := NewSynchronizer(store, s.sync)
	catalogCtx := context.WithoutCancel(ctx)
	var (
		results []domain.ClearResult
		failed  bool
	)
	for i := range docs {
		doc := &docs[i]
		res := domain.ClearResult{Unit: unit + "/" + doc.URI}

		previous, err := s.catalog.GetChunks(ctx, doc.ID)
		if err != nil {
			res.Err = err
			results = append(results, res)
			failed = true
			continue
		}

		syncRes := syncer.Sync(ctx, d.Namespace(), nil, chunkIDs(previous))
		res.VectorsDeleted = syncRes.Deleted()
		if syncRes.OK() {
			res.Err = s.catalog.DeleteDocument(catalogCtx, doc.ID)
		} else {
			deleted := toSet(syncRes.DeletedIDs)
			var remaining []domain.Chunk
			for _, ch := range previous {
				if !deleted[ch.ID] {
					remaining = append(remaining, ch)
				}
			}
			res.Err = errors.Join(append(syncRes.Errors, s.catalog.ReplaceChunks(catalogCtx, doc, remaining))...)
		}
		if res.Err != nil {
			failed = true
		}
		results = append(results, res)
	}

	sourceResult := domain.ClearResult{Unit: unit}
	for _, r := range results {
		sourceResult.VectorsDeleted += r.VectorsDeleted
	}
	if failed {
		sourceResult.Err = fmt.Errorf("source %s: %w", unit, domain.ErrHasChildren)
	} else {
		sourceResult.Err = s.catalog.DeleteSource(catalogCtx, src.ID)
	}
	logger.Info("Cleared %s: %d vectors deleted", unit, sourceResult.VectorsDeleted)
	return append(results, sourceResult)
}

// ClearDomain clears every source of a domain, then the domain row.
func (s *IndexService) ClearDomain(ctx context.Context, domainName string) []domain.ClearResult {
	d, err := s.catalog.GetDomain(ctx, domainName)
	if err != nil {
		return []domain.ClearResult{{Unit: domainName, Err: err}}
	}

	var (
		results []domain.ClearResult
		failed  bool
		total   int
	)
	for i := range d.Sources {
		if err := ctx.Err(); err != nil {
			results = append(results, domain.ClearResult{Unit: d.Name + "/" + d.Sources[i].Name, Err: err})
			failed = true
			break
		}
		sourceResults := s.clearSource(ctx, d, &d.Sources[i])
		last := sourceResults[len(sourceResults)-1]
		total += last.VectorsDeleted
		if last.Err != nil {
			failed = true
		}
		results = append(results, sourceResults...)
	}

	domainResult := domain.ClearResult{Unit: d.Name, VectorsDeleted: total}
	if failed {
		domainResult.Err = fmt.Errorf("domain %s: %w", d.Name, domain.ErrHasChildren)
	} else {
		domainResult.Err = s.catalog.DeleteDomain(context.WithoutCancel(ctx), d.Name)
	}
	return append(results, domainResult)
}
