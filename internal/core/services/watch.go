package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// DefaultWatchDebounce groups bursts of file events into one pass.
const DefaultWatchDebounce = 2 * time.Second

// Watch ingests a source once, then again after every change its loader
// reports. Changes arriving within debounce of each other trigger one pass.
func (s *IngestService) Watch(
	ctx context.Context,
	domainName, sourceName string,
	debounce time.Duration,
	onPass func(*domain.IngestSummary, error),
) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if onPass == nil {
		onPass = func(*domain.IngestSummary, error) {}
	}

	d, err := s.catalog.GetDomain(ctx, domainName)
	if err != nil {
		return fmt.Errorf("get domain %s: %w", domainName, err)
	}
	src, err := s.catalog.GetSource(ctx, domainName, sourceName)
	if err != nil {
		return fmt.Errorf("get source %s/%s: %w", domainName, sourceName, err)
	}

	loaderSource := *src
	if loaderSource.Loader.IsZero() {
		loaderSource.Loader = d.Loader
	}
	loader, err := s.loaders.Create(loaderSource)
	if err != nil {
		return err
	}
	defer loader.Close()

	watcher, ok := loader.(driven.Watcher)
	if !ok {
		return fmt.Errorf("%w: loader %q cannot watch for changes", domain.ErrUnsupportedType, loader.Kind())
	}
	events, err := watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch %s/%s: %w", domainName, sourceName, err)
	}

	force := driving.IngestOptions{Force: true, Wait: true}
	onPass(s.IngestSource(ctx, domainName, sourceName, force))
	logger.Info("Watching %s/%s for changes", domainName, sourceName)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, open := <-events:
			if !open {
				return nil
			}
			timer.Reset(debounce)
		case <-timer.C:
			logger.Info("Change detected in %s/%s, re-ingesting", domainName, sourceName)
			onPass(s.IngestSource(ctx, domainName, sourceName, force))
		}
	}
}
