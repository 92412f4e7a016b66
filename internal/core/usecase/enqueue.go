package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

// FormatChecker reports whether a source format has a reader.
type FormatChecker interface {
	Supported(format string) bool
}

// EnqueueRunUseCase stores an uploaded source, records a queued run and hands
// the run id to the worker queue.
type EnqueueRunUseCase struct {
	repo    ports.IngestionRunRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	formats FormatChecker
}

func NewEnqueueRunUseCase(
	repo ports.IngestionRunRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	formats FormatChecker,
) *EnqueueRunUseCase {
	return &EnqueueRunUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		formats: formats,
	}
}

func (uc *EnqueueRunUseCase) Enqueue(
	ctx context.Context,
	partition, format, filename string,
	body io.Reader,
) (*domain.IngestionRun, error) {
	partition = strings.TrimSpace(partition)
	format = strings.ToLower(strings.TrimSpace(format))
	if partition == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue run", fmt.Errorf("partition is required"))
	}
	if uc.formats != nil && !uc.formats.Supported(format) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue run", fmt.Errorf("unsupported format %q", format))
	}

	id := uuid.NewString()
	storageKey := id + "/" + sanitizeFilename(filename)
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	run := &domain.IngestionRun{
		ID:         id,
		Partition:  partition,
		Format:     format,
		SourcePath: storageKey,
		Status:     domain.RunQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	run.Report.Partition = partition

	if err := uc.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create ingestion run: %w", err)
	}

	if err := uc.queue.PublishIngestionRun(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion run: %w", err)
	}

	return run, nil
}

// GetByID exposes run state to the HTTP adapter and CLI.
func (uc *EnqueueRunUseCase) GetByID(ctx context.Context, id string) (*domain.IngestionRun, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get run", fmt.Errorf("run id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "source.bin"
	}
	return base
}
