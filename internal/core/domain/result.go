package domain

import (
	"math"
	"time"
)

// Failure stages reported in summaries.
const (
	StageFetch    = "fetch"
	StageClean    = "clean"
	StageEmbed    = "embed"
	StageDelete   = "delete"
	StageUpsert   = "upsert"
	StageCatalog  = "catalog"
	StageLock     = "lock"
	StageValidate = "validate"
)

// Failure records one isolated failure of an ingestion pass.
type Failure struct {
	// Stage is where the failure happened.
	Stage string

	// ID identifies the failed unit (chunk ID, document URI or source name).
	ID string

	// Reason is the error text.
	Reason string
}

// SyncResult summarises one synchronizer call.
type SyncResult struct {
	// Namespace is the vector store namespace that was synchronised.
	Namespace string

	// UpsertedIDs are records confirmed written.
	UpsertedIDs []string

	// DeletedIDs are stale IDs confirmed deleted.
	DeletedIDs []string

	// FailedIDs are records that were not confirmed written.
	FailedIDs []string

	// FailedDeleteIDs are stale IDs whose deletion was not confirmed.
	FailedDeleteIDs []string

	// Errors holds one error per failed batch.
	Errors []error
}

// Upserted returns the number of records confirmed written.
func (r *SyncResult) Upserted() int { return len(r.UpsertedIDs) }

// Deleted returns the number of stale IDs confirmed deleted.
func (r *SyncResult) Deleted() int { return len(r.DeletedIDs) }

// Failed returns the number of records and stale IDs not confirmed.
func (r *SyncResult) Failed() int { return len(r.FailedIDs) + len(r.FailedDeleteIDs) }

// OK reports whether every record and deletion was confirmed.
func (r *SyncResult) OK() bool { return r.Failed() == 0 }

// TokenStats summarises token counts of the chunks produced by a pass.
type TokenStats struct {
	Count int
	Min   int
	Max   int
	Total int
}

// Add records one chunk's token count.
func (s *TokenStats) Add(tokens int) {
	if s.Count == 0 || tokens < s.Min {
		s.Min = tokens
	}
	if tokens > s.Max {
		s.Max = tokens
	}
	s.Count++
	s.Total += tokens
}

// Avg returns the mean token count, rounded.
func (s TokenStats) Avg() int {
	if s.Count == 0 {
		return 0
	}
	return int(math.Round(float64(s.Total) / float64(s.Count)))
}

// IngestSummary is the structured outcome of one source pass.
type IngestSummary struct {
	Domain string
	Source string

	// Skipped is set when the source was not due for an update.
	Skipped bool

	DocumentsLoaded    int
	DocumentsProcessed int
	DocumentsTooSmall  int
	DocumentsFailed    int
	DocumentsPruned    int

	ChunksUpserted  int
	ChunksUnchanged int
	ChunksDeleted   int
	ChunksFailed    int

	// FailedIDs lists chunk IDs that were not confirmed written or deleted.
	FailedIDs []string

	// Failures lists every isolated failure with its reason.
	Failures []Failure

	Tokens   TokenStats
	Started  time.Time
	Duration time.Duration
}

// AddFailure records an isolated failure.
func (s *IngestSummary) AddFailure(stage, id string, err error) {
	s.Failures = append(s.Failures, Failure{Stage: stage, ID: id, Reason: err.Error()})
}

// OK reports whether the pass completed without any failure.
func (s *IngestSummary) OK() bool {
	return len(s.Failures) == 0 && s.ChunksFailed == 0 && s.DocumentsFailed == 0
}

// DomainSummary aggregates the source passes of one domain run.
type DomainSummary struct {
	Domain  string
	Sources []*IngestSummary

	// Errors holds fatal per-source errors (misconfiguration, fetch exhaustion).
	Errors []error
}

// Totals sums the counters of all sources.
func (d *DomainSummary) Totals() IngestSummary {
	total := IngestSummary{Domain: d.Domain}
	for _, s := range d.Sources {
		total.DocumentsLoaded += s.DocumentsLoaded
		total.DocumentsProcessed += s.DocumentsProcessed
		total.DocumentsTooSmall += s.DocumentsTooSmall
		total.DocumentsFailed += s.DocumentsFailed
		total.DocumentsPruned += s.DocumentsPruned
		total.ChunksUpserted += s.ChunksUpserted
		total.ChunksUnchanged += s.ChunksUnchanged
		total.ChunksDeleted += s.ChunksDeleted
		total.ChunksFailed += s.ChunksFailed
		total.FailedIDs = append(total.FailedIDs, s.FailedIDs...)
		total.Failures = append(total.Failures, s.Failures...)
		total.Duration += s.Duration
	}
	return total
}

// ClearResult reports the bottom-up deletion of one unit.
type ClearResult struct {
	// Unit names what was cleared ("domain/source" or "domain/source/uri").
	Unit string

	// VectorsDeleted counts vector IDs removed from the store.
	VectorsDeleted int

	// Err is nil when the unit was fully removed.
	Err error
}
