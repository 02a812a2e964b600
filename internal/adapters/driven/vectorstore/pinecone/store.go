// Package pinecone provides a vector store adapter for the Pinecone data plane REST API.
package pinecone

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/httpapi"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Default configuration values.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 20
	apiVersion               = "2024-07"
)

// Config holds configuration for the Pinecone store.
type Config struct {
	// APIKey is the Pinecone API key (required).
	APIKey string

	// IndexHost is the index's data plane host, e.g. https://docs-abc123.svc.pinecone.io (required).
	IndexHost string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls (default: 20).
	RequestsPerSecond float64
}

// Store reads and writes one Pinecone index. Namespaces map 1:1 to domains.
type Store struct {
	client *httpapi.Client
}

type sparseValues struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

type vector struct {
	ID           string            `json:"id"`
	Values       []float32         `json:"values"`
	SparseValues *sparseValues     `json:"sparseValues,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace"`
}

type deleteRequest struct {
	IDs       []string `json:"ids,omitempty"`
	DeleteAll bool     `json:"deleteAll,omitempty"`
	Namespace string   `json:"namespace"`
}

type queryRequest struct {
	Vector          []float32                    `json:"vector"`
	SparseVector    *sparseValues                `json:"sparseVector,omitempty"`
	TopK            int                          `json:"topK"`
	Namespace       string                       `json:"namespace"`
	IncludeMetadata bool                         `json:"includeMetadata"`
	Filter          map[string]map[string]string `json:"filter,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

type statsResponse struct {
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
}

// New creates a Pinecone store.
func New(cfg Config) (*Store, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone: API key: %w", domain.ErrMissingCredentials)
	}
	if cfg.IndexHost == "" {
		return nil, fmt.Errorf("pinecone: %w: index host is required", domain.ErrInvalidInput)
	}
	host := strings.TrimRight(cfg.IndexHost, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	return &Store{
		client: httpapi.NewClient(httpapi.Config{
			Provider:          "pinecone",
			BaseURL:           host,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Header: http.Header{
				"Api-Key":                []string{cfg.APIKey},
				"X-Pinecone-Api-Version": []string{apiVersion},
			},
		}),
	}, nil
}

func toSparse(v *domain.SparseVector) *sparseValues {
	if v.Len() == 0 {
		return nil
	}
	return &sparseValues{Indices: v.Indices, Values: v.Values}
}

// Upsert writes records into the namespace.
func (s *Store) Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]vector, len(records))
	for i, r := range records {
		vectors[i] = vector{ID: r.ID, Values: r.Values, SparseValues: toSparse(r.Sparse), Metadata: r.Metadata}
	}
	return s.client.Do(ctx, "upsert", http.MethodPost, "/vectors/upsert",
		upsertRequest{Vectors: vectors, Namespace: namespace}, nil)
}

// Delete removes records by ID.
func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.client.Do(ctx, "delete", http.MethodPost, "/vectors/delete",
		deleteRequest{IDs: ids, Namespace: namespace}, nil)
	if httpapi.IsNotFound(err) {
		return nil
	}
	return err
}

// Query returns the closest matches with their metadata.
func (s *Store) Query(ctx context.Context, namespace string, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	req := queryRequest{
		Vector:          q.Vector,
		SparseVector:    toSparse(q.Sparse),
		TopK:            q.TopK,
		Namespace:       namespace,
		IncludeMetadata: true,
	}
	if len(q.Filter) > 0 {
		req.Filter = make(map[string]map[string]string, len(q.Filter))
		for k, v := range q.Filter {
			req.Filter[k] = map[string]string{"$eq": v}
		}
	}

	var resp queryResponse
	if err := s.client.Do(ctx, "query", http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}
	matches := make([]domain.VectorMatch, len(resp.Matches))
	for i, m := range resp.Matches {
		matches[i] = domain.VectorMatch{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return matches, nil
}

// Stats reports the namespace's vector count.
func (s *Store) Stats(ctx context.Context, namespace string) (domain.NamespaceStats, error) {
	var resp statsResponse
	if err := s.client.Do(ctx, "stats", http.MethodPost, "/describe_index_stats", struct{}{}, &resp); err != nil {
		return domain.NamespaceStats{}, err
	}
	return domain.NamespaceStats{Namespace: namespace, VectorCount: resp.Namespaces[namespace].VectorCount}, nil
}

// DeleteNamespace removes every record in the namespace.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	err := s.client.Do(ctx, "delete namespace", http.MethodPost, "/vectors/delete",
		deleteRequest{DeleteAll: true, Namespace: namespace}, nil)
	if httpapi.IsNotFound(err) {
		return nil
	}
	return err
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}
