package ports

import (
	"context"
	"io"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// QuestionAnswerer is the inbound contract for the query path.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question domain.Question) (*domain.Answer, error)
}

// PartitionIngestor runs the ingestion pipeline for one partition source.
type PartitionIngestor interface {
	Run(ctx context.Context, src domain.PartitionSource) (domain.IngestionReport, error)
}

// RunEnqueuer is the inbound contract for asynchronous ingestion uploads.
type RunEnqueuer interface {
	Enqueue(ctx context.Context, partition, format, filename string, body io.Reader) (*domain.IngestionRun, error)
}

// RunReader is the inbound read model for ingestion run state.
type RunReader interface {
	GetByID(ctx context.Context, id string) (*domain.IngestionRun, error)
}
