package domain

import "time"

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IngestionReport aggregates per-item outcomes of one partition ingestion.
type IngestionReport struct {
	Partition         string `json:"partition"`
	Documents         int    `json:"documents"`
	Skipped           int    `json:"skipped"`
	Chunks            int    `json:"chunks"`
	Embedded          int    `json:"embedded"`
	EmbedFailed       int    `json:"embed_failed"`
	DimensionRejected int    `json:"dimension_rejected"`
	Indexed           int    `json:"indexed"`
	IndexFailed       int    `json:"index_failed"`
}

// IngestionRun tracks an asynchronous ingestion job handled by the worker.
type IngestionRun struct {
	ID         string          `json:"id"`
	Partition  string          `json:"partition"`
	Format     string          `json:"format"`
	SourcePath string          `json:"source_path"`
	Status     RunStatus       `json:"status"`
	Report     IngestionReport `json:"report"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
