// Package memory provides an in-process vector store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Store keeps records per namespace and scores queries by cosine similarity.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	namespaces map[string]map[string]domain.VectorRecord
}

// New creates an empty store. A positive dimensions value is enforced on upsert.
func New(dimensions int) *Store {
	return &Store{
		dimensions: dimensions,
		namespaces: make(map[string]map[string]domain.VectorRecord),
	}
}

// Upsert inserts or replaces records by ID.
func (s *Store) Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without ID", domain.ErrInvalidInput)
		}
		if s.dimensions > 0 && len(r.Values) != s.dimensions {
			return fmt.Errorf("%w: record %s has %d values, want %d",
				domain.ErrDimensionMismatch, r.ID, len(r.Values), s.dimensions)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]domain.VectorRecord)
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		ns[r.ID] = r
	}
	return nil
}

// Delete removes records by ID. Unknown IDs are ignored.
func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.namespaces[namespace]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

// Query returns the TopK records closest to the query vector.
func (s *Store) Query(ctx context.Context, namespace string, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []domain.VectorMatch
	for _, r := range s.namespaces[namespace] {
		if !matchesFilter(r.Metadata, q.Filter) {
			continue
		}
		matches = append(matches, domain.VectorMatch{
			ID:       r.ID,
			Score:    cosine(q.Vector, r.Values),
			Metadata: r.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if q.TopK > 0 && len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

// Stats reports the namespace size.
func (s *Store) Stats(_ context.Context, namespace string) (domain.NamespaceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.NamespaceStats{Namespace: namespace, VectorCount: len(s.namespaces[namespace])}, nil
}

// DeleteNamespace removes every record in the namespace.
func (s *Store) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// IDs returns the sorted record IDs of a namespace.
func (s *Store) IDs(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.namespaces[namespace]))
	for id := range s.namespaces[namespace] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns one record.
func (s *Store) Get(namespace, id string) (domain.VectorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.namespaces[namespace][id]
	return r, ok
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func matchesFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
