// Package redis provides a source locker shared by every shelby instance
// pointed at the same Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// Ensure Locker implements the interface.
var _ driven.SourceLocker = (*Locker)(nil)

// Default configuration values.
const (
	DefaultPrefix     = "shelby:lock:"
	DefaultTTL        = 30 * time.Second
	DefaultRetryDelay = 250 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still holds our token.
var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Config holds configuration for the Redis locker.
type Config struct {
	// Addr is the Redis address (host:port).
	Addr string

	// Password is optional.
	Password string

	// DB selects the Redis database.
	DB int

	// Prefix is prepended to lock keys (default: "shelby:lock:").
	Prefix string

	// TTL bounds how long a crashed holder blocks a source (default: 30s).
	// Held locks are refreshed at a third of the TTL.
	TTL time.Duration

	// RetryDelay is how often Lock polls a contended key (default: 250ms).
	RetryDelay time.Duration
}

// Locker implements driven.SourceLocker with SET NX PX.
type Locker struct {
	rdb        goredis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration

	// extend pushes the expiry of a key still holding token.
	extend func(ctx context.Context, redisKey, token string) (bool, error)
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Locker, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", domain.ErrInvalidInput)
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb goredis.UniversalClient, cfg Config) *Locker {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	l := &Locker{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL, retryDelay: cfg.RetryDelay}
	l.extend = l.extendScript
	return l
}

// TryLock acquires key without blocking. The held context is cancelled with
// domain.ErrLockLost when the key is taken over or cannot be refreshed for a
// full TTL.
func (l *Locker) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", key, domain.ErrSourceLocked)
	}

	held, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, cancel, stop, done)

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(stop)
			<-done
			cancel(nil)
			releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelRelease()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
				logger.Warn("Failed to release lock %s: %v", key, err)
			}
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

// Close closes the Redis client.
func (l *Locker) Close() error {
	return l.rdb.Close()
}

// keepAlive refreshes the lock every third of the TTL until stop is closed.
// It calls lost once the key no longer holds token, or once no refresh has
// succeeded for a whole TTL and the key may have expired.
func (l *Locker) keepAlive(redisKey, token string, lost context.CancelCauseFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	lastOK := time.Now()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			ok, err := l.extend(ctx, redisKey, token)
			cancel()
			switch {
			case err != nil && time.Since(lastOK) < l.ttl:
				logger.Warn("Failed to refresh lock %s: %v", redisKey, err)
			case err != nil:
				logger.Error("Lock %s not refreshed for %s: %v", redisKey, l.ttl, err)
				lost(fmt.Errorf("%s: %w", redisKey, domain.ErrLockLost))
				return
			case !ok:
				logger.Error("Lock %s was taken over", redisKey)
				lost(fmt.Errorf("%s: %w", redisKey, domain.ErrLockLost))
				return
			default:
				lastOK = time.Now()
			}
		}
	}
}

func (l *Locker) extendScript(ctx context.Context, redisKey, token string) (bool, error) {
	n, err := refreshScript.Run(ctx, l.rdb, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
