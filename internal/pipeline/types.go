package pipeline

import (
	"context"
	"time"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// Pipeline defines the interface that all ledger ingestion pipelines must implement
type Pipeline interface {
	// Name returns the unique identifier for this pipeline
	Name() string

	// Transform processes a single input file and returns its ledger rows
	Transform(ctx context.Context, inputFile string) ([]domain.LedgerRow, error)

	// GetOutputTable returns the target database table name
	GetOutputTable() string

	// GetSnapshotDate extracts the date from the filename
	GetSnapshotDate(filename string) (time.Time, error)

	// Validate checks if the input file is valid for this pipeline
	Validate(inputFile string) error
}

// LedgerSink receives buffered rows when the aggregator flushes.
type LedgerSink interface {
	InsertRows(ctx context.Context, rows []domain.LedgerRow) (int64, error)
}

// RunStore persists run and file job bookkeeping.
type RunStore interface {
	CreatePipelineRun(ctx context.Context, run *PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *PipelineRun) error
	GetPipelineRun(ctx context.Context, id int64) (*PipelineRun, error)
	GetPipelineRunByDate(ctx context.Context, pipelineName string, date time.Time) (*PipelineRun, error)
	CreateFileJob(ctx context.Context, job *FileJob) error
	UpdateFileJob(ctx context.Context, job *FileJob) error
	GetFailedFileJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*FileJob, error)
	IncrementProcessedFiles(ctx context.Context, runID int64) error
	AddRowCount(ctx context.Context, runID int64, count int) error
}

// PipelineConfig holds configuration for a pipeline instance
type PipelineConfig struct {
	Name          string
	BatchSize     int           // Number of files to buffer before flushing
	BatchRows     int           // Number of rows to buffer before flushing
	FlushInterval time.Duration // Max time to wait before flushing
	WorkerCount   int           // Number of concurrent workers
	RetryAttempts int           // Number of retries on failure
	RetryBackoff  time.Duration // Backoff duration between retries
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{
		Name:          name,
		BatchSize:     5,
		BatchRows:     5000,
		FlushInterval: 5 * time.Minute,
		WorkerCount:   4,
		RetryAttempts: 3,
		RetryBackoff:  30 * time.Second,
	}
}

// PipelineStatus represents the current state of a pipeline run
type PipelineStatus string

const (
	StatusPending    PipelineStatus = "pending"
	StatusProcessing PipelineStatus = "processing"
	StatusCompleted  PipelineStatus = "completed"
	StatusFailed     PipelineStatus = "failed"
)

// FileJobStatus represents the state of a single file processing job
type FileJobStatus string

const (
	FileStatusQueued     FileJobStatus = "queued"
	FileStatusProcessing FileJobStatus = "processing"
	FileStatusCompleted  FileJobStatus = "completed"
	FileStatusFailed     FileJobStatus = "failed"
)

// PipelineRun tracks a single execution of a pipeline for a specific snapshot date
type PipelineRun struct {
	ID             int64          `db:"id" json:"id"`
	PipelineName   string         `db:"pipeline_name" json:"pipeline_name"`
	Date           time.Time      `db:"snapshot_date" json:"snapshot_date"`
	Status         PipelineStatus `db:"status" json:"status"`
	TotalFiles     int            `db:"total_files" json:"total_files"`
	ProcessedFiles int            `db:"processed_files" json:"processed_files"`
	TotalRows      int            `db:"total_rows" json:"total_rows"`
	StartedAt      time.Time      `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage   string         `db:"error_message" json:"error_message,omitempty"`
}

// FileJob tracks the processing of a single file
type FileJob struct {
	ID            int64         `db:"id" json:"id"`
	PipelineRunID int64         `db:"ingest_run_id" json:"ingest_run_id"`
	FilePath      string        `db:"file_path" json:"file_path"`
	Status        FileJobStatus `db:"status" json:"status"`
	ErrorMessage  string        `db:"error_message" json:"error_message,omitempty"`
	ProcessedAt   *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
	RetryCount    int           `db:"retry_count" json:"retry_count"`
}

// RunResult summarizes one Orchestrator.Run call.
type RunResult struct {
	Runs      []*PipelineRun `json:"runs"`
	TotalRows int            `json:"total_rows"`
}

// PipelineMetrics holds metrics for monitoring
type PipelineMetrics struct {
	FilesProcessed  int64      `db:"files_processed" json:"files_processed"`
	RowsProcessed   int64      `db:"rows_processed" json:"rows_processed"`
	ErrorCount      int64      `db:"error_count" json:"error_count"`
	LastProcessedAt *time.Time `db:"last_processed_at" json:"last_processed_at,omitempty"`
}
