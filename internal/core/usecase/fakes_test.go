package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

func floatPtr(v float64) *float64 { return &v }

func vecHit(partition, chunkID string, distance float64) domain.SearchHit {
	return domain.SearchHit{
		Partition:      partition,
		ChunkID:        chunkID,
		Content:        "content " + chunkID,
		VectorDistance: floatPtr(distance),
	}
}

func lexHit(partition, chunkID string, score float64) domain.SearchHit {
	return domain.SearchHit{
		Partition:    partition,
		ChunkID:      chunkID,
		Content:      "content " + chunkID,
		LexicalScore: floatPtr(score),
	}
}

type storeFake struct {
	mu sync.Mutex

	dim       int
	ensureErr error
	ensured   []domain.Partition

	vectorHits  map[string][]domain.SearchHit
	vectorErr   map[string]error
	lexicalHits map[string][]domain.SearchHit
	lexicalErr  map[string]error
	blocked     map[string]bool

	vectorCalls       int
	lexicalPartitions []string

	upsertErr   map[string]error
	upsertCalls int
	docs        map[string]domain.IndexedDocument
}

func (f *storeFake) EnsurePartition(_ context.Context, partition domain.Partition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, partition)
	return nil
}

func (f *storeFake) Upsert(_ context.Context, partition string, docs []domain.IndexedDocument) []domain.ItemResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.docs == nil {
		f.docs = make(map[string]domain.IndexedDocument)
	}
	out := make([]domain.ItemResult, len(docs))
	for i, doc := range docs {
		out[i].ID = doc.ID
		if err := f.upsertErr[doc.ID]; err != nil {
			out[i].Err = err
			continue
		}
		if f.dim > 0 && len(doc.Vector) != f.dim {
			out[i].Err = domain.WrapError(domain.ErrDimensionMismatch, "upsert", fmt.Errorf("got %d", len(doc.Vector)))
			continue
		}
		f.docs[partition+"/"+doc.ID] = doc
	}
	return out
}

func (f *storeFake) SearchVector(ctx context.Context, partition string, _ []float32, k int) ([]domain.SearchHit, error) {
	f.mu.Lock()
	f.vectorCalls++
	blocked := f.blocked[partition]
	hits, err := f.vectorHits[partition], f.vectorErr[partition]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *storeFake) SearchLexical(ctx context.Context, partition, _, _ string, _ int) ([]domain.SearchHit, error) {
	f.mu.Lock()
	f.lexicalPartitions = append(f.lexicalPartitions, partition)
	blocked := f.blocked[partition]
	hits, err := f.lexicalHits[partition], f.lexicalErr[partition]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

type embedderFake struct {
	mu sync.Mutex

	dim       int
	err       error
	failTexts map[string]bool
	dimByText map[string]int

	embedded   []string
	batchCalls int
}

func (f *embedderFake) vector(text string) []float32 {
	dim := f.dim
	if d, ok := f.dimByText[text]; ok {
		dim = d
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(len(text) + i)
	}
	return vec
}

func (f *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedded = append(f.embedded, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *embedderFake) EmbedBatch(_ context.Context, texts []string) []domain.EmbeddingResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := make([]domain.EmbeddingResult, len(texts))
	for i, text := range texts {
		f.embedded = append(f.embedded, text)
		if f.err != nil || f.failTexts[text] {
			out[i].Err = errors.New("embed failed")
			continue
		}
		out[i].Vector = f.vector(text)
	}
	return out
}

type completionFake struct {
	mu       sync.Mutex
	reply    domain.CompletionResponse
	err      error
	requests []domain.CompletionRequest
}

func (f *completionFake) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.CompletionResponse{}, f.err
	}
	return f.reply, nil
}

type ocrFake struct {
	spans []domain.OCRSpan
	err   error
}

func (f *ocrFake) ExtractSpans(context.Context, []byte) ([]domain.OCRSpan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.spans, nil
}

type readerFake struct {
	docs    []domain.SourceDocument
	skipped int
	err     error
	sources []domain.PartitionSource
}

func (f *readerFake) Read(_ context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error) {
	f.sources = append(f.sources, src)
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.docs, f.skipped, nil
}

// chunkerFake emits one chunk per " | " separated unit.
type chunkerFake struct {
	calls int
}

func (f *chunkerFake) Chunk(parentID, text string, _ int) []domain.Chunk {
	f.calls++
	units := strings.Split(text, " | ")
	out := make([]domain.Chunk, 0, len(units))
	for i, unit := range units {
		id := parentID
		if len(units) > 1 {
			id = fmt.Sprintf("%s_%d", parentID, i+1)
		}
		out = append(out, domain.Chunk{ID: id, ParentID: parentID, Content: unit, TokenCount: 1})
	}
	return out
}

type statusCall struct {
	status domain.RunStatus
	errMsg string
}

type runRepoFake struct {
	run           *domain.IngestionRun
	createErr     error
	getErr        error
	reportErr     error
	statusErr     error
	failStatusErr error

	created     []*domain.IngestionRun
	statusCalls []statusCall
	report      *domain.IngestionReport
}

func (f *runRepoFake) Create(_ context.Context, run *domain.IngestionRun) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, run)
	return nil
}

func (f *runRepoFake) GetByID(context.Context, string) (*domain.IngestionRun, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyRun := *f.run
	return &copyRun, nil
}

func (f *runRepoFake) UpdateStatus(_ context.Context, _ string, status domain.RunStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.RunFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	if f.statusErr != nil {
		return f.statusErr
	}
	return nil
}

func (f *runRepoFake) SaveReport(_ context.Context, _ string, report domain.IngestionReport) error {
	if f.reportErr != nil {
		return f.reportErr
	}
	f.report = &report
	return nil
}

type storageFake struct {
	saveErr error
	saved   map[string]string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[key] = string(body)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.saved[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *storageFake) Path(key string) string {
	return "/data/" + key
}

type queueFake struct {
	err       error
	published []string
}

func (f *queueFake) PublishIngestionRun(_ context.Context, runID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, runID)
	return nil
}

func (f *queueFake) SubscribeIngestionRuns(context.Context, func(context.Context, string) error) error {
	return nil
}

type queryRecorderFake struct {
	promoted    bool
	lexicalOnly bool
	results     int
	calls       int
}

func (f *queryRecorderFake) RecordQuery(promoted, lexicalOnly bool, results int, _ time.Duration) {
	f.calls++
	f.promoted = promoted
	f.lexicalOnly = lexicalOnly
	f.results = results
}
