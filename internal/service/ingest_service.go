package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockrisk/backend-go/internal/cache"
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline/ledger"
	"github.com/andresuchdata/stockrisk/backend-go/internal/storage"
)

// ErrEmptyUpload is returned when an upload carries no bytes.
var ErrEmptyUpload = errors.New("uploaded file is empty")

// RunHistory reads back ingestion runs, their file jobs and aggregate stats.
type RunHistory interface {
	GetRecentRuns(ctx context.Context, limit int) ([]*pipeline.PipelineRun, error)
	GetFileJobsByRunID(ctx context.Context, runID int64) ([]*pipeline.FileJob, error)
	GetPipelineStats(ctx context.Context, pipelineName string, since time.Time) (*pipeline.PipelineMetrics, error)
}

// UploadRequest is one ledger file submitted by a user.
type UploadRequest struct {
	FileName  string
	Data      []byte
	UserName  string
	SessionID string
}

// UploadResult reports what an upload validated and wrote.
type UploadResult struct {
	CorrelationID string                  `json:"correlation_id"`
	FileName      string                  `json:"file_name"`
	ArchiveKey    string                  `json:"archive_key,omitempty"`
	Report        ledger.ValidationReport `json:"validation"`
	RowsWritten   int                     `json:"rows_written"`
	Runs          []*pipeline.PipelineRun `json:"runs"`
}

type IngestService struct {
	orchestrator  *pipeline.Orchestrator
	pipeline      pipeline.Pipeline
	archive       storage.ObjectStorage
	archivePrefix string
	uploadDir     string
	cache         cache.QueryCache
	actions       *OrderService
	runs          RunHistory
	now           func() time.Time
}

// IngestOptions holds the optional collaborators of an IngestService.
type IngestOptions struct {
	Archive       storage.ObjectStorage
	ArchivePrefix string
	UploadDir     string
	Cache         cache.QueryCache
	Actions       *OrderService
	Runs          RunHistory
}

func NewIngestService(orchestrator *pipeline.Orchestrator, p pipeline.Pipeline, opts IngestOptions) *IngestService {
	if opts.Cache == nil {
		opts.Cache = cache.NewNoopQueryCache()
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	return &IngestService{
		orchestrator:  orchestrator,
		pipeline:      p,
		archive:       opts.Archive,
		archivePrefix: opts.ArchivePrefix,
		uploadDir:     opts.UploadDir,
		cache:         opts.Cache,
		actions:       opts.Actions,
		runs:          opts.Runs,
		now:           time.Now,
	}
}

// ValidateUpload checks a ledger file without writing anything.
func (s *IngestService) ValidateUpload(ctx context.Context, fileName string, data []byte) (ledger.ValidationReport, error) {
	if err := ctx.Err(); err != nil {
		return ledger.ValidationReport{}, err
	}
	if len(data) == 0 {
		return ledger.ValidationReport{}, ErrEmptyUpload
	}
	if !ledger.SupportedExtension(fileName) {
		return ledger.ValidationReport{}, fmt.Errorf("%w: %s (csv and xlsx supported)", ledger.ErrUnsupportedFormat, fileName)
	}
	table, err := ledger.Read(bytes.NewReader(data), fileName)
	if err != nil {
		return ledger.ValidationReport{}, err
	}
	return ledger.Validate(table), nil
}

// Upload validates the file, archives it, runs the ingestion pipeline over it and
// drops cached query results. An invalid file returns *ledger.ValidationError.
func (s *IngestService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	name := filepath.Base(req.FileName)
	report, err := s.ValidateUpload(ctx, name, req.Data)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, &ledger.ValidationError{Report: report}
	}

	result := &UploadResult{
		CorrelationID: uuid.NewString(),
		FileName:      name,
		Report:        report,
	}

	localPath := filepath.Join(s.uploadDir, name)
	if err := os.WriteFile(localPath, req.Data, 0o644); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	if s.archive != nil {
		key := path.Join(s.archivePrefix, s.now().UTC().Format(domain.DateLayout), result.CorrelationID+"_"+name)
		if err := s.archive.UploadObject(ctx, key, req.Data); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("ingest: failed to archive upload")
		} else {
			result.ArchiveKey = key
		}
	}

	run, err := s.IngestFiles(ctx, []string{localPath})
	result.Runs = run.Runs
	result.RowsWritten = run.TotalRows
	if err != nil {
		return result, err
	}

	if s.actions != nil {
		s.actions.record(ctx, domain.ActionLog{
			CorrelationID: result.CorrelationID,
			ActionType:    domain.ActionLedgerUploaded,
			UserName:      req.UserName,
			SessionID:     req.SessionID,
			Details:       strPtr(fmt.Sprintf("file=%s rows=%d", name, result.RowsWritten)),
		})
	}

	log.Info().
		Str("file", name).
		Str("correlation_id", result.CorrelationID).
		Int("rows", result.RowsWritten).
		Msg("ledger upload ingested")
	return result, nil
}

// IngestFiles runs the pipeline over local files and invalidates cached query results
// once anything was written.
func (s *IngestService) IngestFiles(ctx context.Context, files []string) (pipeline.RunResult, error) {
	result, err := s.orchestrator.Run(ctx, s.pipeline, files)
	if result.TotalRows > 0 {
		s.invalidate(ctx)
	}
	return result, err
}

// RetryFailed re-runs failed file jobs.
func (s *IngestService) RetryFailed(ctx context.Context) (int, error) {
	n, err := s.orchestrator.RetryFailed(ctx, s.pipeline)
	if n > 0 {
		s.invalidate(ctx)
	}
	return n, err
}

// RecentRuns lists the latest ingestion runs, newest first.
func (s *IngestService) RecentRuns(ctx context.Context, limit int) ([]*pipeline.PipelineRun, error) {
	if s.runs == nil {
		return make([]*pipeline.PipelineRun, 0), nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.runs.GetRecentRuns(ctx, limit)
}

// RunFiles lists the file jobs of one run in processing order.
func (s *IngestService) RunFiles(ctx context.Context, runID int64) ([]*pipeline.FileJob, error) {
	if s.runs == nil {
		return make([]*pipeline.FileJob, 0), nil
	}
	return s.runs.GetFileJobsByRunID(ctx, runID)
}

// Stats totals files, rows and failed runs for the ledger pipeline over the last window.
func (s *IngestService) Stats(ctx context.Context, window time.Duration) (*pipeline.PipelineMetrics, error) {
	if s.runs == nil {
		return &pipeline.PipelineMetrics{}, nil
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.runs.GetPipelineStats(ctx, s.pipeline.Name(), s.now().Add(-window))
}

func (s *IngestService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("ingest: cache invalidation failed")
	}
}

func strPtr(v string) *string {
	return &v
}
