package services

import (
	"context"
	"sync"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driving"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// DefaultScheduleInterval is how often a scheduled run checks every domain.
const DefaultScheduleInterval = time.Hour

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler runs ingestion of all domains on a fixed interval.
// Each source's update frequency still decides whether it is re-ingested.
type Scheduler struct {
	ingest   driving.IngestService
	interval time.Duration
	onRun    func([]*domain.DomainSummary, error)

	mu      sync.Mutex
	running bool
	busy    bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. onRun, if set, receives the outcome of every run.
func NewScheduler(
	ingest driving.IngestService,
	interval time.Duration,
	onRun func([]*domain.DomainSummary, error),
) *Scheduler {
	if interval <= 0 {
		interval = DefaultScheduleInterval
	}
	if onRun == nil {
		onRun = func([]*domain.DomainSummary, error) {}
	}
	return &Scheduler{ingest: ingest, interval: interval, onRun: onRun}
}

// Start runs once immediately, then on every tick. It blocks until Stop is
// called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.trigger(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.wg.Wait()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

// Stop shuts the scheduler down and waits for a run in progress.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// trigger starts a run unless the previous one is still going.
func (s *Scheduler) trigger(ctx context.Context) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		logger.Warn("Scheduled ingestion still running, skipping tick")
		return
	}
	s.busy = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()

		started := time.Now()
		summaries, err := s.ingest.IngestAll(ctx, driving.IngestOptions{Wait: true})
		if err != nil {
			logger.Error("Scheduled ingestion failed: %v", err)
		} else {
			logger.Info("Scheduled ingestion of %d domains finished in %s", len(summaries), time.Since(started).Round(time.Millisecond))
		}
		s.onRun(summaries, err)
	}()
}
