package driving

import (
	"context"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// IngestOptions tunes one ingestion run.
type IngestOptions struct {
	// Force ingests sources even when they are not due for an update.
	Force bool

	// Reembed re-embeds chunks whose content is unchanged.
	Reembed bool

	// Wait blocks on a source held by another pass instead of failing
	// with domain.ErrSourceLocked.
	Wait bool
}

// IngestService runs the ingestion pipeline.
type IngestService interface {
	// IngestSource ingests one source of a domain.
	// Partial failures are reported in the summary, not as an error.
	IngestSource(ctx context.Context, domainName, sourceName string, opts IngestOptions) (*domain.IngestSummary, error)

	// IngestDomain ingests the batch-update sources of a domain in parallel.
	IngestDomain(ctx context.Context, domainName string, opts IngestOptions) (*domain.DomainSummary, error)

	// IngestAll ingests every domain in name order.
	IngestAll(ctx context.Context, opts IngestOptions) ([]*domain.DomainSummary, error)

	// Watch re-ingests a source whenever its loader reports a change.
	// onPass receives the outcome of every pass. Blocks until ctx is done.
	Watch(ctx context.Context, domainName, sourceName string, debounce time.Duration,
		onPass func(*domain.IngestSummary, error)) error
}
