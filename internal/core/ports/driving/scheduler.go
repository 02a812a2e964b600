package driving

import "context"

// Scheduler re-runs ingestion of every domain on a fixed interval.
type Scheduler interface {
	// Start begins running scheduled ingestion.
	// Blocks until Stop is called or ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler and waits for a run in progress.
	Stop() error
}
