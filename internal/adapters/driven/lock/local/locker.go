// Package local provides a source locker for a single host.
// Locks are held in-process and mirrored to lock files with gofrs/flock,
// so two shelby processes sharing a data directory never ingest the same
// source at once.
package local

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure Locker implements the interface.
var _ driven.SourceLocker = (*Locker)(nil)

// DefaultRetryDelay is how often Lock polls a contended key.
const DefaultRetryDelay = 50 * time.Millisecond

// Locker is a keyed lock backed by one lock file per key.
type Locker struct {
	dir        string
	retryDelay time.Duration

	mu   sync.Mutex
	held map[string]*flock.Flock
}

// New creates a locker that keeps its lock files in dir.
func New(dir string) (*Locker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Locker{
		dir:        dir,
		retryDelay: DefaultRetryDelay,
		held:       make(map[string]*flock.Flock),
	}, nil
}

// Path returns the lock file used for key.
func (l *Locker) Path(key string) string {
	return filepath.Join(l.dir, url.PathEscape(key)+".lock")
}

// TryLock acquires key without blocking. File locks cannot be lost, so the
// held context only ends with ctx or unlock.
func (l *Locker) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, nil, fmt.Errorf("%s: %w", key, domain.ErrSourceLocked)
	}

	fl := flock.New(l.Path(key))
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, nil, fmt.Errorf("%s: %w", key, domain.ErrSourceLocked)
	}
	l.held[key] = fl

	held, cancel := context.WithCancel(ctx)
	var once sync.Once
	return held, func() {
		once.Do(func() {
			cancel()
			l.release(key, fl)
		})
	}, nil
}

// Lock blocks until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for {
		held, unlock, err := l.TryLock(ctx, key)
		if err == nil {
			return held, unlock, nil
		}
		if !errors.Is(err, domain.ErrSourceLocked) {
			return nil, nil, err
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(key string, fl *flock.Flock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = fl.Unlock()
	delete(l.held, key)
}
