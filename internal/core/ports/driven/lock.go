package driven

import "context"

// SourceLocker grants per-source mutual exclusion across ingestion passes.
//
// Both methods return a context derived from ctx that stays live while the
// lock is held. It is cancelled with cause domain.ErrLockLost if the holder
// can no longer guarantee exclusion, and when unlock is called. Guarded work
// should run under it. unlock is safe to call more than once.
type SourceLocker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (held context.Context, unlock func(), err error)

	// TryLock acquires the key without blocking.
	// Returns domain.ErrSourceLocked when another holder has it.
	TryLock(ctx context.Context, key string) (held context.Context, unlock func(), err error)
}
