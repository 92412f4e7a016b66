package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

type IngestionRunRepository struct {
	db *sql.DB
}

func NewIngestionRunRepository(db *sql.DB) *IngestionRunRepository {
	return &IngestionRunRepository{db: db}
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *IngestionRunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025041401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ingestion_runs (
	id TEXT PRIMARY KEY,
	partition TEXT NOT NULL,
	format TEXT NOT NULL,
	source_path TEXT NOT NULL,
	status TEXT NOT NULL,
	report JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingestion_runs_partition ON ingestion_runs(partition);
CREATE INDEX IF NOT EXISTS idx_ingestion_runs_created_at ON ingestion_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *IngestionRunRepository) Create(ctx context.Context, run *domain.IngestionRun) error {
	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO ingestion_runs (
	id, partition, format, source_path, status, report, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		run.ID, run.Partition, run.Format, run.SourcePath, string(run.Status), reportJSON,
		run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ingestion run: %w", err)
	}
	return nil
}

func (r *IngestionRunRepository) GetByID(ctx context.Context, id string) (*domain.IngestionRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, partition, format, source_path, status, report, error_message, created_at, updated_at
FROM ingestion_runs
WHERE id = $1
`, id)

	var run domain.IngestionRun
	var reportRaw []byte
	var status string

	err := row.Scan(
		&run.ID, &run.Partition, &run.Format, &run.SourcePath, &status,
		&reportRaw, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get ingestion run", fmt.Errorf("run %s", id))
		}
		return nil, fmt.Errorf("scan ingestion run: %w", err)
	}

	if len(reportRaw) > 0 {
		if err := json.Unmarshal(reportRaw, &run.Report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
	}
	run.Status = domain.RunStatus(status)
	return &run, nil
}

func (r *IngestionRunRepository) UpdateStatus(ctx context.Context, id string, status domain.RunStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE ingestion_runs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update ingestion run status: %w", err)
	}
	return requireRow(res, "update ingestion run status", id)
}

func (r *IngestionRunRepository) SaveReport(ctx context.Context, id string, report domain.IngestionReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE ingestion_runs
SET report = $2, updated_at = $3
WHERE id = $1
`, id, reportJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save ingestion report: %w", err)
	}
	return requireRow(res, "save ingestion report", id)
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("run %s", id))
	}
	return nil
}
