package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenStats(t *testing.T) {
	var stats TokenStats
	assert.Equal(t, 0, stats.Avg())

	for _, n := range []int{10, 30, 20} {
		stats.Add(n)
	}

	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 10, stats.Min)
	assert.Equal(t, 30, stats.Max)
	assert.Equal(t, 60, stats.Total)
	assert.Equal(t, 20, stats.Avg())
}

func TestSyncResult_Counts(t *testing.T) {
	r := &SyncResult{
		UpsertedIDs:     []string{"a-0", "a-1"},
		DeletedIDs:      []string{"a-2"},
		FailedIDs:       []string{"b-0"},
		FailedDeleteIDs: []string{"b-3"},
	}

	assert.Equal(t, 2, r.Upserted())
	assert.Equal(t, 1, r.Deleted())
	assert.Equal(t, 2, r.Failed())
	assert.False(t, r.OK())
	assert.True(t, (&SyncResult{}).OK())
}

func TestDomainSummary_Totals(t *testing.T) {
	a := &IngestSummary{Source: "a", DocumentsProcessed: 2, ChunksUpserted: 5, FailedIDs: []string{"x-0"}}
	b := &IngestSummary{Source: "b", DocumentsProcessed: 1, ChunksDeleted: 3}
	b.AddFailure(StageUpsert, "y-1", errors.New("boom"))

	total := (&DomainSummary{Domain: "d", Sources: []*IngestSummary{a, b}}).Totals()

	assert.Equal(t, "d", total.Domain)
	assert.Equal(t, 3, total.DocumentsProcessed)
	assert.Equal(t, 5, total.ChunksUpserted)
	assert.Equal(t, 3, total.ChunksDeleted)
	assert.Equal(t, []string{"x-0"}, total.FailedIDs)
	assert.Len(t, total.Failures, 1)
	assert.True(t, a.OK())
	assert.False(t, b.OK())
}
