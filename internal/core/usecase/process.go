package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

// RunRecorder observes worker runs.
type RunRecorder interface {
	StartRun()
	FinishRun(report domain.IngestionReport, duration time.Duration, err error)
}

// ProcessRunUseCase executes queued ingestion runs inside the worker.
type ProcessRunUseCase struct {
	repo     ports.IngestionRunRepository
	storage  ports.ObjectStorage
	pipeline ports.PartitionIngestor
	manifest map[string]domain.PartitionSource
	recorder RunRecorder
}

func NewProcessRunUseCase(
	repo ports.IngestionRunRepository,
	storage ports.ObjectStorage,
	pipeline ports.PartitionIngestor,
	manifest []domain.PartitionSource,
	recorder RunRecorder,
) *ProcessRunUseCase {
	known := make(map[string]domain.PartitionSource, len(manifest))
	for _, src := range manifest {
		known[src.Name] = src
	}
	return &ProcessRunUseCase{
		repo:     repo,
		storage:  storage,
		pipeline: pipeline,
		manifest: known,
		recorder: recorder,
	}
}

func (uc *ProcessRunUseCase) ProcessByID(ctx context.Context, runID string) error {
	started := time.Now()
	if uc.recorder != nil {
		uc.recorder.StartRun()
	}

	report, err := uc.process(ctx, runID)
	if uc.recorder != nil {
		uc.recorder.FinishRun(report, time.Since(started), err)
	}
	return err
}

func (uc *ProcessRunUseCase) process(ctx context.Context, runID string) (domain.IngestionReport, error) {
	run, err := uc.repo.GetByID(ctx, runID)
	if err != nil {
		return domain.IngestionReport{}, fmt.Errorf("fetch run by id: %w", err)
	}

	if err := uc.markStatus(ctx, runID, domain.RunRunning, ""); err != nil {
		return domain.IngestionReport{}, fmt.Errorf("set status=running: %w", err)
	}

	report, err := uc.pipeline.Run(ctx, uc.sourceFor(run))
	if err != nil {
		if failErr := uc.markFailed(ctx, runID, err); failErr != nil {
			return report, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return report, err
	}

	if err := uc.repo.SaveReport(ctx, runID, report); err != nil {
		err = fmt.Errorf("save report: %w", err)
		if failErr := uc.markFailed(ctx, runID, err); failErr != nil {
			return report, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return report, err
	}

	if err := uc.markStatus(ctx, runID, domain.RunCompleted, ""); err != nil {
		return report, fmt.Errorf("set status=completed: %w", err)
	}
	return report, nil
}

// sourceFor points the run at its stored upload, keeping manifest metadata
// such as the base URL and boost when the partition is known.
func (uc *ProcessRunUseCase) sourceFor(run *domain.IngestionRun) domain.PartitionSource {
	src := uc.manifest[run.Partition]
	src.Name = run.Partition
	src.Format = run.Format
	src.Path = uc.storage.Path(run.SourcePath)
	return src
}

func (uc *ProcessRunUseCase) markStatus(ctx context.Context, runID string, status domain.RunStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, runID, status, errMessage)
}

func (uc *ProcessRunUseCase) markFailed(ctx context.Context, runID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, runID, domain.RunFailed, processErr.Error())
}
