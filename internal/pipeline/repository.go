package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository handles database operations for pipeline tracking
type Repository struct {
	db *sqlx.DB
}

var _ RunStore = (*Repository)(nil)

// NewRepository creates a new pipeline repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const runColumns = `id, pipeline_name, snapshot_date, status, total_files,
	processed_files, total_rows, started_at, completed_at, COALESCE(error_message, '') AS error_message`

const jobColumns = `fj.id, fj.ingest_run_id, fj.file_path, fj.status,
	COALESCE(fj.error_message, '') AS error_message, fj.processed_at, fj.retry_count`

// CreatePipelineRun creates a new pipeline run record
func (r *Repository) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		INSERT INTO ingest_runs (
			pipeline_name, snapshot_date, status, total_files,
			processed_files, total_rows, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	return r.db.QueryRowxContext(
		ctx, query,
		run.PipelineName, run.Date, run.Status, run.TotalFiles,
		run.ProcessedFiles, run.TotalRows, run.StartedAt,
	).Scan(&run.ID)
}

// UpdatePipelineRun updates an existing pipeline run
func (r *Repository) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		UPDATE ingest_runs
		SET status = $1, total_files = $2, processed_files = $3, total_rows = $4,
		    completed_at = $5, error_message = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.TotalFiles, run.ProcessedFiles, run.TotalRows,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)

	return err
}

// GetPipelineRun retrieves a pipeline run by ID
func (r *Repository) GetPipelineRun(ctx context.Context, id int64) (*PipelineRun, error) {
	run := &PipelineRun{}
	if err := r.db.GetContext(ctx, run, `SELECT `+runColumns+` FROM ingest_runs WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return run, nil
}

// GetPipelineRunByDate retrieves a pipeline run for a specific date, or nil when none exists
func (r *Repository) GetPipelineRunByDate(ctx context.Context, pipelineName string, date time.Time) (*PipelineRun, error) {
	run := &PipelineRun{}
	err := r.db.GetContext(ctx, run,
		`SELECT `+runColumns+` FROM ingest_runs WHERE pipeline_name = $1 AND snapshot_date = $2`,
		pipelineName, date,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CreateFileJob creates a new file job record
func (r *Repository) CreateFileJob(ctx context.Context, job *FileJob) error {
	query := `
		INSERT INTO ingest_file_jobs (
			ingest_run_id, file_path, status, error_message
		) VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	return r.db.QueryRowxContext(
		ctx, query,
		job.PipelineRunID, job.FilePath, job.Status, job.ErrorMessage,
	).Scan(&job.ID)
}

// UpdateFileJob updates an existing file job
func (r *Repository) UpdateFileJob(ctx context.Context, job *FileJob) error {
	query := `
		UPDATE ingest_file_jobs
		SET status = $1, error_message = $2, processed_at = $3, retry_count = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(
		ctx, query,
		job.Status, job.ErrorMessage, job.ProcessedAt, job.RetryCount, job.ID,
	)

	return err
}

// GetFileJobsByRunID retrieves all file jobs for a pipeline run
func (r *Repository) GetFileJobsByRunID(ctx context.Context, runID int64) ([]*FileJob, error) {
	jobs := make([]*FileJob, 0)
	err := r.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM ingest_file_jobs fj WHERE fj.ingest_run_id = $1 ORDER BY fj.id`,
		runID,
	)
	return jobs, err
}

// GetFailedFileJobs retrieves all failed file jobs that still have retries left
func (r *Repository) GetFailedFileJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*FileJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM ingest_file_jobs fj
		JOIN ingest_runs ir ON fj.ingest_run_id = ir.id
		WHERE ir.pipeline_name = $1
		  AND fj.status = $2
		  AND fj.retry_count < $3
		ORDER BY fj.id
	`

	jobs := make([]*FileJob, 0)
	err := r.db.SelectContext(ctx, &jobs, query, pipelineName, FileStatusFailed, maxRetries)
	return jobs, err
}

// GetPipelineStats retrieves statistics for a pipeline
func (r *Repository) GetPipelineStats(ctx context.Context, pipelineName string, since time.Time) (*PipelineMetrics, error) {
	query := `
		SELECT
			COALESCE(SUM(processed_files), 0) AS files_processed,
			COALESCE(SUM(total_rows), 0) AS rows_processed,
			COUNT(CASE WHEN status = $2 THEN 1 END) AS error_count,
			MAX(completed_at) AS last_processed_at
		FROM ingest_runs
		WHERE pipeline_name = $1
		  AND started_at >= $3
		  AND status IN ($4, $2)
	`

	metrics := &PipelineMetrics{}
	err := r.db.GetContext(ctx, metrics, query, pipelineName, StatusFailed, since, StatusCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return &PipelineMetrics{}, nil
	}
	return metrics, err
}

// IncrementProcessedFiles atomically increments the processed file count
func (r *Repository) IncrementProcessedFiles(ctx context.Context, runID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ingest_runs SET processed_files = processed_files + 1 WHERE id = $1`, runID)
	return err
}

// AddRowCount atomically adds to the total row count
func (r *Repository) AddRowCount(ctx context.Context, runID int64, count int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ingest_runs SET total_rows = total_rows + $1 WHERE id = $2`, count, runID)
	return err
}

// GetRecentRuns lists the latest runs across pipelines, newest first
func (r *Repository) GetRecentRuns(ctx context.Context, limit int) ([]*PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := make([]*PipelineRun, 0)
	err := r.db.SelectContext(ctx, &runs,
		`SELECT `+runColumns+` FROM ingest_runs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	return runs, err
}
