// Package elasticsearch implements the index store on one Elasticsearch
// index per partition.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

const vectorField = "embedding"

type Store struct {
	client   *elasticsearch.Client
	prefix   string
	executor *resilience.Executor

	mu   sync.Mutex
	dims map[string]int
}

type Option func(*Store)

func WithExecutor(executor *resilience.Executor) Option {
	return func(s *Store) {
		s.executor = executor
	}
}

func New(address, username, password, indexPrefix string, opts ...Option) (*Store, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{address},
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	s := &Store{
		client: client,
		prefix: indexPrefix,
		dims:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) indexName(partition string) string {
	return strings.ToLower(s.prefix + partition)
}

func (s *Store) EnsurePartition(ctx context.Context, partition domain.Partition) error {
	want := partition.Schema.VectorDimension
	if strings.TrimSpace(partition.Name) == "" || want <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "elasticsearch.ensure", fmt.Errorf("partition name and vector dimension are required"))
	}
	if got, ok := s.cachedDim(partition.Name); ok {
		return checkDimension(partition.Name, got, want)
	}

	got, err := s.indexDim(ctx, partition.Name)
	switch {
	case err == nil:
		s.rememberDim(partition.Name, got)
		return checkDimension(partition.Name, got, want)
	case !domain.IsKind(err, domain.ErrNotFound):
		return err
	}

	mapping, err := json.Marshal(buildMapping(partition.Schema))
	if err != nil {
		return fmt.Errorf("marshal index mapping: %w", err)
	}
	idx := s.indexName(partition.Name)
	err = s.run(ctx, "elasticsearch.ensure", func(callCtx context.Context) error {
		res, err := s.client.Indices.Create(
			idx,
			s.client.Indices.Create.WithContext(callCtx),
			s.client.Indices.Create.WithBody(bytes.NewReader(mapping)),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch create index request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			statusErr := newStatusError("create_index", res)
			if res.StatusCode == http.StatusBadRequest && strings.Contains(statusErr.Body, "resource_already_exists_exception") {
				return nil
			}
			return statusErr
		}
		return nil
	})
	if err != nil {
		return wrapTemporaryIfNeeded("elasticsearch.ensure", err)
	}
	s.rememberDim(partition.Name, want)
	return nil
}

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
		got, err := s.indexDim(ctx, partition)
		if err != nil {
			for i := range results {
				results[i].Err = err
			}
			return results
		}
		s.rememberDim(partition, got)
		dim = got
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	sent := make([]int, 0, len(docs))
	for i, doc := range docs {
		if len(doc.Vector) != dim {
			results[i].Err = domain.WrapError(domain.ErrDimensionMismatch, "elasticsearch.upsert",
				fmt.Errorf("chunk %s: vector length %d, partition %s expects %d", doc.ID, len(doc.Vector), partition, dim))
			continue
		}
		_ = enc.Encode(map[string]any{"index": map[string]any{"_id": doc.ID}})
		_ = enc.Encode(map[string]any{
			"chunk_id":    doc.ID,
			"parent_id":   doc.ParentID,
			"title":       doc.Title,
			"url":         doc.URL,
			"timestamp":   doc.Timestamp,
			"token_count": doc.TokenCount,
			"content":     doc.Content,
			vectorField:   doc.Vector,
		})
		sent = append(sent, i)
	}
	if len(sent) == 0 {
		return results
	}

	body := buf.Bytes()
	idx := s.indexName(partition)
	var bulk bulkResponse
	err := s.run(ctx, "elasticsearch.bulk", func(callCtx context.Context) error {
		res, err := s.client.Bulk(
			bytes.NewReader(body),
			s.client.Bulk.WithContext(callCtx),
			s.client.Bulk.WithIndex(idx),
			s.client.Bulk.WithRefresh("true"),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch bulk request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return newStatusError("bulk", res)
		}
		bulk = bulkResponse{}
		if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
			return fmt.Errorf("decode bulk response: %w", err)
		}
		return nil
	})
	if err != nil {
		err = wrapTemporaryIfNeeded("elasticsearch.bulk", err)
		for _, i := range sent {
			results[i].Err = err
		}
		return results
	}

	for n, i := range sent {
		if n >= len(bulk.Items) {
			results[i].Err = fmt.Errorf("bulk response missing item %s", docs[i].ID)
			continue
		}
		item := bulk.Items[n]["index"]
		if item.Status >= 300 {
			results[i].Err = fmt.Errorf("bulk index %s status %d: %s: %s", docs[i].ID, item.Status, item.Error.Type, item.Error.Reason)
		}
	}
	return results
}

func (s *Store) SearchVector(ctx context.Context, partition string, vector []float32, k int) ([]domain.SearchHit, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}
	candidates := k * 10
	if candidates < 100 {
		candidates = 100
	}
	hits, err := s.search(ctx, "elasticsearch.search_vector", partition, map[string]any{
		"knn": map[string]any{
			"field":          vectorField,
			"query_vector":   vector,
			"k":              k,
			"num_candidates": candidates,
		},
		"size":    k,
		"_source": sourceFields,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		// cosine _score is (1 + cos) / 2
		distance := 1 - (2*h.Score - 1)
		hit := h.toDomain(partition)
		hit.VectorDistance = &distance
		out = append(out, hit)
	}
	return out, nil
}

func (s *Store) SearchLexical(ctx context.Context, partition, query, field string, perPage int) ([]domain.SearchHit, error) {
	if strings.TrimSpace(query) == "" || perPage <= 0 {
		return nil, nil
	}
	if field == "" {
		field = domain.ContentField
	}
	hits, err := s.search(ctx, "elasticsearch.search_lexical", partition, map[string]any{
		"query": map[string]any{
			"match": map[string]any{field: query},
		},
		"size":    perPage,
		"_source": sourceFields,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		score := h.Score
		hit := h.toDomain(partition)
		hit.LexicalScore = &score
		out = append(out, hit)
	}
	return out, nil
}

var sourceFields = []string{"chunk_id", "content", "title", "url"}

func (s *Store) search(ctx context.Context, operation, partition string, query map[string]any) ([]searchHit, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}
	idx := s.indexName(partition)

	var resp searchResponse
	err = s.run(ctx, operation, func(callCtx context.Context) error {
		res, err := s.client.Search(
			s.client.Search.WithContext(callCtx),
			s.client.Search.WithIndex(idx),
			s.client.Search.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch search request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return newStatusError("search", res)
		}
		resp = searchResponse{}
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, domain.WrapError(domain.ErrNotFound, operation, err)
		}
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	return resp.Hits.Hits, nil
}

func (s *Store) indexDim(ctx context.Context, partition string) (int, error) {
	idx := s.indexName(partition)
	var mappings map[string]indexMapping
	err := s.run(ctx, "elasticsearch.get_mapping", func(callCtx context.Context) error {
		res, err := s.client.Indices.GetMapping(
			s.client.Indices.GetMapping.WithContext(callCtx),
			s.client.Indices.GetMapping.WithIndex(idx),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch get mapping request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return newStatusError("get_mapping", res)
		}
		mappings = nil
		if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
			return fmt.Errorf("decode mapping response: %w", err)
		}
		return nil
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return 0, domain.WrapError(domain.ErrNotFound, "elasticsearch.get_mapping", err)
		}
		return 0, wrapTemporaryIfNeeded("elasticsearch.get_mapping", err)
	}

	m, ok := mappings[idx]
	if !ok {
		return 0, fmt.Errorf("mapping for %s not returned", idx)
	}
	prop, ok := m.Mappings.Properties[vectorField]
	if !ok || prop.Dims <= 0 {
		return 0, fmt.Errorf("index %s has no %q dense_vector field", idx, vectorField)
	}
	return prop.Dims, nil
}

func (s *Store) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	return resilience.Run(ctx, s.executor, operation, fn, resilience.ClassifyHTTPError)
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
		return domain.WrapError(domain.ErrDimensionMismatch, "elasticsearch.ensure",
			fmt.Errorf("partition %s has dimension %d, requested %d", name, got, want))
	}
	return nil
}

func buildMapping(schema domain.PartitionSchema) map[string]any {
	props := make(map[string]any, len(schema.Fields)+1)
	for _, f := range schema.Fields {
		switch f.Type {
		case domain.FieldTypeText:
			props[f.Name] = map[string]any{"type": "text"}
		case domain.FieldTypeTimestamp:
			props[f.Name] = map[string]any{"type": "date"}
		case domain.FieldTypeVector:
			// stored under vectorField below
		default:
			props[f.Name] = map[string]any{"type": "keyword"}
		}
	}
	props["token_count"] = map[string]any{"type": "integer"}
	props[vectorField] = map[string]any{
		"type":       "dense_vector",
		"dims":       schema.VectorDimension,
		"index":      true,
		"similarity": "cosine",
	}
	return map[string]any{"mappings": map[string]any{"properties": props}}
}

func newStatusError(operation string, res *esapi.Response) *resilience.StatusError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	return &resilience.StatusError{
		Provider:   "elasticsearch",
		Operation:  operation,
		StatusCode: res.StatusCode,
		Status:     res.Status(),
		Body:       string(body),
	}
}
