package ports

import (
	"context"
	"io"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// IngestionRunRepository persists ingestion run state.
type IngestionRunRepository interface {
	Create(ctx context.Context, run *domain.IngestionRun) error
	GetByID(ctx context.Context, id string) (*domain.IngestionRun, error)
	UpdateStatus(ctx context.Context, id string, status domain.RunStatus, errMessage string) error
	SaveReport(ctx context.Context, id string, report domain.IngestionReport) error
}

// ObjectStorage stores raw uploaded sources.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Path(key string) string
}

// MessageQueue publishes/consumes ingestion run ids.
type MessageQueue interface {
	PublishIngestionRun(ctx context.Context, runID string) error
	SubscribeIngestionRuns(ctx context.Context, handler func(context.Context, string) error) error
}

// SourceReader reads raw documents for a partition. The int result counts
// entries skipped as malformed.
type SourceReader interface {
	Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error)
}

// TextCleaner normalizes raw content before chunking.
type TextCleaner interface {
	Clean(format, raw string) string
}

// Chunker splits document text into bounded chunks.
type Chunker interface {
	Chunk(parentID, text string, maxTokens int) []domain.Chunk
}

// Embedder builds vectors. EmbedBatch returns one result per input, in order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) []domain.EmbeddingResult
}

// IndexStore is the vector+lexical document store.
type IndexStore interface {
	EnsurePartition(ctx context.Context, partition domain.Partition) error
	Upsert(ctx context.Context, partition string, docs []domain.IndexedDocument) []domain.ItemResult
	SearchVector(ctx context.Context, partition string, vector []float32, k int) ([]domain.SearchHit, error)
	SearchLexical(ctx context.Context, partition, query, field string, perPage int) ([]domain.SearchHit, error)
}

// CompletionProvider sends prompts to a chat-completion model.
type CompletionProvider interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error)
}

// OCR extracts text spans from image bytes.
type OCR interface {
	ExtractSpans(ctx context.Context, image []byte) ([]domain.OCRSpan, error)
}
