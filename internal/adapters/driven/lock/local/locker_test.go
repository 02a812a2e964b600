package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

func TestTryLock_Exclusive(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, unlock, err := l.TryLock(ctx, "tatum/docs")
	require.NoError(t, err)
	assert.FileExists(t, l.Path("tatum/docs"))

	_, _, err = l.TryLock(ctx, "tatum/docs")
	assert.ErrorIs(t, err, domain.ErrSourceLocked)

	_, other, err := l.TryLock(ctx, "tatum/api")
	require.NoError(t, err)
	other()

	unlock()
	unlock() // second call is a no-op

	_, again, err := l.TryLock(ctx, "tatum/docs")
	require.NoError(t, err)
	again()
}

func TestTryLock_AcrossLockers(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)
	b, err := New(dir)
	require.NoError(t, err)

	_, unlock, err := a.TryLock(context.Background(), "tatum/docs")
	require.NoError(t, err)
	defer unlock()

	_, _, err = b.TryLock(context.Background(), "tatum/docs")
	assert.ErrorIs(t, err, domain.ErrSourceLocked)
}

func TestTryLock_HeldContextEndsOnUnlock(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)

	held, unlock, err := l.TryLock(context.Background(), "k")
	require.NoError(t, err)
	assert.NoError(t, held.Err())

	unlock()
	assert.ErrorIs(t, held.Err(), context.Canceled)
	assert.NotErrorIs(t, context.Cause(held), domain.ErrLockLost)
}

func TestLock_WaitsForRelease(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)
	l.retryDelay = 5 * time.Millisecond

	_, unlock, err := l.TryLock(context.Background(), "k")
	require.NoError(t, err)
	time.AfterFunc(20*time.Millisecond, unlock)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, second, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	second()
}

func TestLock_ContextDone(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)
	l.retryDelay = 5 * time.Millisecond

	_, unlock, err := l.TryLock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
