// Package qdrant provides a vector store adapter for the Qdrant REST API.
// Each namespace is stored in its own collection, created on first upsert.
package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/httpapi"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Default configuration values.
const (
	DefaultURL               = "http://localhost:6333"
	DefaultTimeout           = 15 * time.Second
	DefaultCollectionPrefix  = "shelby_"
	DefaultRequestsPerSecond = 50
)

// payloadChunkID carries the chunk ID, since Qdrant point IDs must be UUIDs.
const payloadChunkID = "chunk_id"

// pointNamespace scopes point UUIDs derived from chunk IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://shelby-as-a-service/qdrant-point"))

// Config holds configuration for the Qdrant store.
type Config struct {
	// URL is the Qdrant REST endpoint (default: http://localhost:6333).
	URL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Dimensions is the dense vector size used when creating collections (required).
	Dimensions int

	// CollectionPrefix is prepended to namespaces (default: "shelby_").
	CollectionPrefix string

	// Timeout is the request timeout (default: 15s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls (default: 50).
	RequestsPerSecond float64
}

// Store maps namespaces onto Qdrant collections with cosine distance.
// Sparse values are not stored.
type Store struct {
	client     *httpapi.Client
	prefix     string
	dimensions int

	mu      sync.Mutex
	ensured map[string]bool
}

type point struct {
	ID      string            `json:"id"`
	Vector  []float32         `json:"vector"`
	Payload map[string]string `json:"payload"`
}

type fieldMatch struct {
	Key   string            `json:"key"`
	Match map[string]string `json:"match"`
}

type filter struct {
	Must []fieldMatch `json:"must"`
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
	Filter      *filter   `json:"filter,omitempty"`
}

type searchResponse struct {
	Result []struct {
		ID      string            `json:"id"`
		Score   float64           `json:"score"`
		Payload map[string]string `json:"payload"`
	} `json:"result"`
}

type collectionResponse struct {
	Result struct {
		PointsCount int `json:"points_count"`
	} `json:"result"`
}

// New creates a Qdrant store.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: %w: dimensions must be positive", domain.ErrInvalidInput)
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = DefaultCollectionPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("api-key", cfg.APIKey)
	}

	return &Store{
		client: httpapi.NewClient(httpapi.Config{
			Provider:          "qdrant",
			BaseURL:           strings.TrimRight(cfg.URL, "/"),
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Header:            header,
		}),
		prefix:     cfg.CollectionPrefix,
		dimensions: cfg.Dimensions,
		ensured:    make(map[string]bool),
	}, nil
}

// PointID returns the Qdrant point UUID for a chunk ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *Store) collectionPath(namespace string) string {
	return "/collections/" + url.PathEscape(s.prefix+namespace)
}

// ensureCollection creates the namespace's collection once per process.
func (s *Store) ensureCollection(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[namespace] {
		return nil
	}

	path := s.collectionPath(namespace)
	err := s.client.Do(ctx, "get collection", http.MethodGet, path, nil, nil)
	if httpapi.IsNotFound(err) {
		body := map[string]any{"vectors": map[string]any{"size": s.dimensions, "distance": "Cosine"}}
		err = s.client.Do(ctx, "create collection", http.MethodPut, path, body, nil)
	}
	if err != nil {
		return err
	}
	s.ensured[namespace] = true
	return nil
}

// Upsert writes records into the namespace's collection.
func (s *Store) Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, namespace); err != nil {
		return err
	}

	points := make([]point, len(records))
	for i, r := range records {
		if len(r.Values) != s.dimensions {
			return fmt.Errorf("qdrant: %w: record %s has %d values, want %d",
				domain.ErrDimensionMismatch, r.ID, len(r.Values), s.dimensions)
		}
		payload := make(map[string]string, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[payloadChunkID] = r.ID
		points[i] = point{ID: PointID(r.ID), Vector: r.Values, Payload: payload}
	}
	return s.client.Do(ctx, "upsert", http.MethodPut, s.collectionPath(namespace)+"/points?wait=true",
		map[string]any{"points": points}, nil)
}

// Delete removes records by chunk ID.
func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	err := s.client.Do(ctx, "delete", http.MethodPost, s.collectionPath(namespace)+"/points/delete?wait=true",
		map[string]any{"points": points}, nil)
	if httpapi.IsNotFound(err) {
		return nil
	}
	return err
}

// Query returns the closest matches with their payload.
func (s *Store) Query(ctx context.Context, namespace string, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	req := searchRequest{Vector: q.Vector, Limit: q.TopK, WithPayload: true}
	if len(q.Filter) > 0 {
		req.Filter = &filter{}
		for k, v := range q.Filter {
			req.Filter.Must = append(req.Filter.Must, fieldMatch{Key: k, Match: map[string]string{"value": v}})
		}
	}

	var resp searchResponse
	err := s.client.Do(ctx, "search", http.MethodPost, s.collectionPath(namespace)+"/points/search", req, &resp)
	if httpapi.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	matches := make([]domain.VectorMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := r.Payload[payloadChunkID]
		delete(r.Payload, payloadChunkID)
		matches = append(matches, domain.VectorMatch{ID: id, Score: r.Score, Metadata: r.Payload})
	}
	return matches, nil
}

// Stats reports the collection's point count. A missing collection reports zero.
func (s *Store) Stats(ctx context.Context, namespace string) (domain.NamespaceStats, error) {
	var resp collectionResponse
	err := s.client.Do(ctx, "stats", http.MethodGet, s.collectionPath(namespace), nil, &resp)
	if httpapi.IsNotFound(err) {
		return domain.NamespaceStats{Namespace: namespace}, nil
	}
	if err != nil {
		return domain.NamespaceStats{}, err
	}
	return domain.NamespaceStats{Namespace: namespace, VectorCount: resp.Result.PointsCount}, nil
}

// DeleteNamespace drops the namespace's collection.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	err := s.client.Do(ctx, "drop collection", http.MethodDelete, s.collectionPath(namespace), nil, nil)
	if err != nil && !httpapi.IsNotFound(err) {
		return err
	}
	s.mu.Lock()
	delete(s.ensured, namespace)
	s.mu.Unlock()
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}
