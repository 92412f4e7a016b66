package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

type IngestionConfig struct {
	MaxTokensPerChunk  int
	EmbeddingDimension int
	BatchSize          int
}

// IngestionPipeline turns one partition source into indexed chunks. Per-item
// failures are counted in the report and never abort the run.
type IngestionPipeline struct {
	reader        ports.SourceReader
	cleaner       ports.TextCleaner
	chunker       ports.Chunker
	formatChunker map[string]ports.Chunker
	embedder      ports.Embedder
	store         ports.IndexStore
	cfg           IngestionConfig
}

type IngestionOption func(*IngestionPipeline)

// WithFormatChunker overrides the chunker for one source format.
func WithFormatChunker(format string, chunker ports.Chunker) IngestionOption {
	return func(p *IngestionPipeline) {
		p.formatChunker[format] = chunker
	}
}

func NewIngestionPipeline(
	reader ports.SourceReader,
	cleaner ports.TextCleaner,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.IndexStore,
	cfg IngestionConfig,
	opts ...IngestionOption,
) *IngestionPipeline {
	if cfg.MaxTokensPerChunk <= 0 {
		cfg.MaxTokensPerChunk = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	p := &IngestionPipeline{
		reader:        reader,
		cleaner:       cleaner,
		chunker:       chunker,
		formatChunker: make(map[string]ports.Chunker),
		embedder:      embedder,
		store:         store,
		cfg:           cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *IngestionPipeline) Run(ctx context.Context, src domain.PartitionSource) (domain.IngestionReport, error) {
	started := time.Now()
	report := domain.IngestionReport{Partition: src.Name}

	partition := domain.Partition{Name: src.Name, Schema: domain.DefaultSchema(p.cfg.EmbeddingDimension)}
	if err := p.store.EnsurePartition(ctx, partition); err != nil {
		return report, fmt.Errorf("ensure partition %q: %w", src.Name, err)
	}

	docs, skipped, err := p.reader.Read(ctx, src)
	if err != nil {
		return report, fmt.Errorf("read source %q: %w", src.Name, err)
	}
	report.Skipped = skipped

	chunks := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			report.Skipped++
			slog.Warn("ingest_document_skipped", "partition", src.Name, "document_id", doc.ID, "error", err)
			continue
		}
		report.Documents++
		chunks = append(chunks, p.chunkDocument(src.Format, doc)...)
	}
	report.Chunks = len(chunks)
	if report.Skipped > 0 {
		slog.Warn("ingest_documents_skipped", "partition", src.Name, "skipped", report.Skipped)
	}

	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingest partition %q: %w", src.Name, err)
		}
		end := min(start+p.cfg.BatchSize, len(chunks))
		p.ingestBatch(ctx, src.Name, chunks[start:end], &report)
	}

	slog.Info("ingest_completed",
		"partition", report.Partition,
		"documents", report.Documents,
		"skipped", report.Skipped,
		"chunks", report.Chunks,
		"embedded", report.Embedded,
		"embed_failed", report.EmbedFailed,
		"dimension_rejected", report.DimensionRejected,
		"indexed", report.Indexed,
		"index_failed", report.IndexFailed,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}

func (p *IngestionPipeline) chunkDocument(format string, doc domain.SourceDocument) []domain.Chunk {
	text := doc.RawContent
	if p.cleaner != nil {
		text = p.cleaner.Clean(format, text)
	}

	chunker := p.chunker
	if override, ok := p.formatChunker[format]; ok {
		chunker = override
	}

	chunks := chunker.Chunk(doc.ID, text, p.cfg.MaxTokensPerChunk)
	for i := range chunks {
		chunks[i].Title = doc.Title
		chunks[i].URL = doc.URL
		chunks[i].Timestamp = doc.Timestamp
	}
	return chunks
}

func (p *IngestionPipeline) ingestBatch(ctx context.Context, partition string, batch []domain.Chunk, report *domain.IngestionReport) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	embeddings := p.embedder.EmbedBatch(ctx, texts)
	docs := make([]domain.IndexedDocument, 0, len(batch))
	for i, chunk := range batch {
		if i >= len(embeddings) {
			report.EmbedFailed++
			slog.Warn("ingest_item_embed_failed", "partition", partition, "chunk_id", chunk.ID, "error", "missing embedding slot")
			continue
		}
		result := embeddings[i]
		if result.Err != nil || len(result.Vector) == 0 {
			report.EmbedFailed++
			slog.Warn("ingest_item_embed_failed", "partition", partition, "chunk_id", chunk.ID, "error", result.Err)
			continue
		}
		if p.cfg.EmbeddingDimension > 0 && len(result.Vector) != p.cfg.EmbeddingDimension {
			report.DimensionRejected++
			slog.Warn("ingest_item_dimension_rejected",
				"partition", partition,
				"chunk_id", chunk.ID,
				"expected", p.cfg.EmbeddingDimension,
				"actual", len(result.Vector),
			)
			continue
		}
		report.Embedded++
		docs = append(docs, domain.IndexedDocument{Chunk: chunk, Vector: result.Vector})
	}
	if len(docs) == 0 {
		return
	}

	for _, item := range p.store.Upsert(ctx, partition, docs) {
		switch {
		case item.OK():
			report.Indexed++
		case domain.IsKind(item.Err, domain.ErrDimensionMismatch):
			report.DimensionRejected++
			slog.Warn("ingest_item_dimension_rejected", "partition", partition, "chunk_id", item.ID, "error", item.Err)
		default:
			report.IndexFailed++
			slog.Warn("ingest_item_index_failed", "partition", partition, "chunk_id", item.ID, "error", item.Err)
		}
	}
}
