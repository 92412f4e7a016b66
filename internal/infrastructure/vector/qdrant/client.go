package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
)

var pointNamespace = uuid.MustParse("6f1c3b8e-2d4a-5e7f-9a0b-1c2d3e4f5a6b")

// Store keeps one Qdrant collection per partition with a named dense vector
// and a sparse lexical vector.
type Store struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor

	mu   sync.Mutex
	dims map[string]int
}

type Option func(*Store)

func WithExecutor(executor *resilience.Executor) Option {
	return func(s *Store) {
		s.executor = executor
	}
}

func New(baseURL string, opts ...Option) *Store {
	s := &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		dims:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PointID is the deterministic Qdrant id of a chunk within a partition.
func PointID(partition, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(partition+"/"+chunkID)).String()
}

func (s *Store) EnsurePartition(ctx context.Context, partition domain.Partition) error {
	want := partition.Schema.VectorDimension
	if strings.TrimSpace(partition.Name) == "" || want <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant.ensure", fmt.Errorf("partition name and vector dimension are required"))
	}
	if got, ok := s.cachedDim(partition.Name); ok {
		return checkDimension(partition.Name, got, want)
	}

	got, err := s.collectionDim(ctx, partition.Name)
	switch {
	case err == nil:
		s.rememberDim(partition.Name, got)
		return checkDimension(partition.Name, got, want)
	case !domain.IsKind(err, domain.ErrNotFound):
		return err
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     want,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{"modifier": "idf"},
		},
	}
	err = s.call(ctx, "qdrant.ensure", http.MethodPut, collectionPath(partition.Name), reqBody, nil)
	var statusErr *resilience.StatusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return wrapTemporaryIfNeeded("qdrant.ensure", err)
	}
	s.rememberDim(partition.Name, want)
	return nil
}

// Upsert writes documents keyed by chunk id. Vectors of the wrong length
// are rejected per item and never sent.
func (s *Store) Upsert(ctx context.Context, partition string, docs []domain.IndexedDocument) []domain.ItemResult {
	results := make([]domain.ItemResult, len(docs))
	for i, doc := range docs {
		results[i].ID = doc.ID
	}
	if len(docs) == 0 {
		return results
	}

	dim, ok := s.cachedDim(partition)
	if !ok {
		got, err := s.collectionDim(ctx, partition)
		if err != nil {
			return failAll(results, nil, err)
		}
		s.rememberDim(partition, got)
		dim = got
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(docs))
	sent := make([]int, 0, len(docs))
	for i, doc := range docs {
		if len(doc.Vector) != dim {
			results[i].Err = domain.WrapError(domain.ErrDimensionMismatch, "qdrant.upsert",
				fmt.Errorf("chunk %s: vector length %d, partition %s expects %d", doc.ID, len(doc.Vector), partition, dim))
			continue
		}
		vector := map[string]any{denseVectorName: doc.Vector}
		if sparse := encodeSparseDocument(doc.Content, doc.Title); !sparse.empty() {
			vector[sparseVectorName] = sparse
		}
		points = append(points, point{
			ID:     PointID(partition, doc.ID),
			Vector: vector,
			Payload: map[string]any{
				"chunk_id":    doc.ID,
				"parent_id":   doc.ParentID,
				"content":     doc.Content,
				"title":       doc.Title,
				"url":         doc.URL,
				"token_count": doc.TokenCount,
				"timestamp":   doc.Timestamp,
			},
		})
		sent = append(sent, i)
	}
	if len(points) == 0 {
		return results
	}

	path := collectionPath(partition) + "/points?wait=true"
	if err := s.call(ctx, "qdrant.upsert", http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return failAll(results, sent, wrapTemporaryIfNeeded("qdrant.upsert", err))
	}
	return results
}

func (s *Store) SearchVector(ctx context.Context, partition string, vector []float32, k int) ([]domain.SearchHit, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}
	points, err := s.query(ctx, "qdrant.search_vector", partition, map[string]any{
		"query":        vector,
		"using":        denseVectorName,
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.SearchHit, 0, len(points))
	for _, p := range points {
		distance := 1 - p.Score
		hit := hitFromPayload(partition, p.Payload)
		hit.VectorDistance = &distance
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) SearchLexical(ctx context.Context, partition, query, field string, perPage int) ([]domain.SearchHit, error) {
	if field != "" && field != domain.ContentField {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant.search_lexical", fmt.Errorf("field %q is not indexed", field))
	}
	sparse := encodeSparseQuery(query)
	if sparse.empty() || perPage <= 0 {
		return nil, nil
	}
	points, err := s.query(ctx, "qdrant.search_lexical", partition, map[string]any{
		"query":        sparse,
		"using":        sparseVectorName,
		"limit":        perPage,
		"with_payload": true,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.SearchHit, 0, len(points))
	for _, p := range points {
		score := p.Score
		hit := hitFromPayload(partition, p.Payload)
		hit.LexicalScore = &score
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) query(ctx context.Context, operation, partition string, body map[string]any) ([]queryPoint, error) {
	var resp queryResponse
	if err := s.call(ctx, operation, http.MethodPost, collectionPath(partition)+"/points/query", body, &resp); err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	return resp.Result.Points, nil
}

func (s *Store) collectionDim(ctx context.Context, name string) (int, error) {
	var resp collectionResponse
	err := s.call(ctx, "qdrant.get_collection", http.MethodGet, collectionPath(name), nil, &resp)
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return 0, domain.WrapError(domain.ErrNotFound, "qdrant.get_collection", err)
	}
	if err != nil {
		return 0, wrapTemporaryIfNeeded("qdrant.get_collection", err)
	}
	dense, ok := resp.Result.Config.Params.Vectors[denseVectorName]
	if !ok {
		return 0, fmt.Errorf("collection %s has no %q vector", name, denseVectorName)
	}
	return dense.Size, nil
}

func (s *Store) call(ctx context.Context, operation, method, path string, payload any, out any) error {
	return resilience.Run(ctx, s.executor, operation, func(callCtx context.Context) error {
		return s.doJSON(callCtx, method, path, payload, out, operation)
	}, resilience.ClassifyHTTPError)
}

func (s *Store) cachedDim(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, ok := s.dims[name]
	return dim, ok
}

func (s *Store) rememberDim(name string, dim int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dims[name] = dim
}

func checkDimension(name string, got, want int) error {
	if got != want {
		return domain.WrapError(domain.ErrDimensionMismatch, "qdrant.ensure",
			fmt.Errorf("partition %s has dimension %d, requested %d", name, got, want))
	}
	return nil
}

func failAll(results []domain.ItemResult, idx []int, err error) []domain.ItemResult {
	if idx == nil {
		for i := range results {
			results[i].Err = err
		}
		return results
	}
	for _, i := range idx {
		results[i].Err = err
	}
	return results
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func hitFromPayload(partition string, payload map[string]any) domain.SearchHit {
	return domain.SearchHit{
		Partition: partition,
		ChunkID:   getStringPayload(payload, "chunk_id"),
		Content:   getStringPayload(payload, "content"),
		Title:     getStringPayload(payload, "title"),
		URL:       getStringPayload(payload, "url"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
