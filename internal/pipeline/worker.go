package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/metrics"
)

// Worker processes files for a specific pipeline
type Worker struct {
	pipeline   Pipeline
	config     PipelineConfig
	repo       RunStore
	sink       LedgerSink
	aggregator *StreamingAggregator
	mu         sync.Mutex
}

// NewWorker creates a new pipeline worker
func NewWorker(pipeline Pipeline, config PipelineConfig, repo RunStore, sink LedgerSink) *Worker {
	return &Worker{
		pipeline: pipeline,
		config:   config,
		repo:     repo,
		sink:     sink,
	}
}

func (w *Worker) newAggregator(date time.Time) *StreamingAggregator {
	return NewStreamingAggregator(
		w.pipeline,
		w.config,
		date,
		func(ctx context.Context, rows []domain.LedgerRow) (int64, error) {
			n, err := w.sink.InsertRows(ctx, rows)
			if err != nil {
				return 0, err
			}
			metrics.IngestedRows.WithLabelValues(w.pipeline.Name()).Add(float64(n))
			return n, nil
		},
	)
}

// ProcessBatch processes a batch of files for a specific date
func (w *Worker) ProcessBatch(ctx context.Context, date time.Time, files []string) (*PipelineRun, error) {
	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Str("date", date.Format(domain.DateLayout)).
		Int("files", len(files)).
		Msg("starting batch")

	run, err := w.getOrCreatePipelineRun(ctx, date, len(files))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline run: %w", err)
	}

	w.aggregator = w.newAggregator(date)

	fileJobs := make([]*FileJob, len(files))
	for i, file := range files {
		job := &FileJob{
			PipelineRunID: run.ID,
			FilePath:      file,
			Status:        FileStatusQueued,
		}
		if err := w.repo.CreateFileJob(ctx, job); err != nil {
			return run, fmt.Errorf("failed to create file job: %w", err)
		}
		fileJobs[i] = job
	}

	run.Status = StatusProcessing
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to update pipeline run: %w", err)
	}

	if err := w.processFilesParallel(ctx, run, fileJobs); err != nil {
		// Rows from files that did succeed are still written.
		if ferr := w.aggregator.Finalize(ctx); ferr != nil {
			log.Error().Err(ferr).Str("pipeline", w.pipeline.Name()).Msg("failed to flush partial batch")
		}
		w.finishRun(ctx, run, StatusFailed, err.Error())
		return run, err
	}

	if err := w.aggregator.Finalize(ctx); err != nil {
		w.finishRun(ctx, run, StatusFailed, fmt.Sprintf("aggregation failed: %v", err))
		return run, fmt.Errorf("failed to finalize aggregation: %w", err)
	}

	if err := w.finishRun(ctx, run, StatusCompleted, ""); err != nil {
		return run, fmt.Errorf("failed to complete pipeline run: %w", err)
	}

	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Int("files", run.ProcessedFiles).
		Int("rows", run.TotalRows).
		Msg("batch completed")

	return run, nil
}

func (w *Worker) finishRun(ctx context.Context, run *PipelineRun, status PipelineStatus, msg string) error {
	run.Status = status
	run.ErrorMessage = msg
	now := time.Now()
	run.CompletedAt = &now
	err := w.repo.UpdatePipelineRun(ctx, run)
	if err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("failed to update pipeline run")
	}
	return err
}

// processFilesParallel processes files using a worker pool
func (w *Worker) processFilesParallel(ctx context.Context, run *PipelineRun, jobs []*FileJob) error {
	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	jobChan := make(chan *FileJob, len(jobs))
	errChan := make(chan error, workerCount)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				if err := w.processFile(ctx, run, job); err != nil {
					log.Warn().
						Err(err).
						Str("pipeline", w.pipeline.Name()).
						Int("worker", workerID).
						Str("file", job.FilePath).
						Msg("failed to process file")
					select {
					case errChan <- err:
					default:
					}
				}
			}
		}(i)
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			close(jobChan)
			wg.Wait()
			return ctx.Err()
		case jobChan <- job:
		}
	}
	close(jobChan)

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return err
	}

	return nil
}

// processFile processes a single file
func (w *Worker) processFile(ctx context.Context, run *PipelineRun, job *FileJob) error {
	startTime := time.Now()

	job.Status = FileStatusProcessing
	if err := w.repo.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	if err := w.pipeline.Validate(job.FilePath); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("validation failed: %w", err))
	}

	rows, err := w.pipeline.Transform(ctx, job.FilePath)
	if err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("transformation failed: %w", err))
	}

	if err := w.aggregator.AddFileData(ctx, rows); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("aggregation failed: %w", err))
	}

	job.Status = FileStatusCompleted
	job.ErrorMessage = ""
	now := time.Now()
	job.ProcessedAt = &now
	if err := w.repo.UpdateFileJob(ctx, job); err != nil {
		return err
	}
	metrics.FileJobs.WithLabelValues(w.pipeline.Name(), string(FileStatusCompleted)).Inc()

	if err := w.repo.IncrementProcessedFiles(ctx, run.ID); err != nil {
		log.Warn().Err(err).Str("pipeline", w.pipeline.Name()).Msg("failed to increment processed files")
	}
	if err := w.repo.AddRowCount(ctx, run.ID, len(rows)); err != nil {
		log.Warn().Err(err).Str("pipeline", w.pipeline.Name()).Msg("failed to add row count")
	}

	w.mu.Lock()
	run.ProcessedFiles++
	run.TotalRows += len(rows)
	w.mu.Unlock()

	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Str("file", job.FilePath).
		Dur("duration", time.Since(startTime)).
		Int("rows", len(rows)).
		Msg("file processed")

	return nil
}

// markJobFailed marks a job as failed and handles retry logic
func (w *Worker) markJobFailed(ctx context.Context, job *FileJob, err error) error {
	job.Status = FileStatusFailed
	job.ErrorMessage = err.Error()
	job.RetryCount++
	metrics.FileJobs.WithLabelValues(w.pipeline.Name(), string(FileStatusFailed)).Inc()

	if uerr := w.repo.UpdateFileJob(ctx, job); uerr != nil {
		log.Error().Err(uerr).Str("pipeline", w.pipeline.Name()).Msg("failed to update job status")
	}

	if job.RetryCount < w.config.RetryAttempts {
		log.Info().
			Str("pipeline", w.pipeline.Name()).
			Str("file", job.FilePath).
			Int("attempt", job.RetryCount).
			Int("max_attempts", w.config.RetryAttempts).
			Msg("file will be retried")
	}

	return err
}

// FlushedRows is the number of rows the last batch wrote to the sink.
func (w *Worker) FlushedRows() int {
	if w.aggregator == nil {
		return 0
	}
	return int(w.aggregator.FlushedRows())
}

// getOrCreatePipelineRun gets or creates a pipeline run for the date
func (w *Worker) getOrCreatePipelineRun(ctx context.Context, date time.Time, totalFiles int) (*PipelineRun, error) {
	run, err := w.repo.GetPipelineRunByDate(ctx, w.pipeline.Name(), date)
	if err != nil {
		return nil, err
	}

	if run != nil {
		// A rerun for the same date appends files to the existing run.
		run.TotalFiles += totalFiles
		run.CompletedAt = nil
		run.ErrorMessage = ""
		if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
			return nil, err
		}
		return run, nil
	}

	run = &PipelineRun{
		PipelineName: w.pipeline.Name(),
		Date:         date,
		Status:       StatusPending,
		TotalFiles:   totalFiles,
		StartedAt:    time.Now(),
	}

	if err := w.repo.CreatePipelineRun(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

// RetryFailed retries all failed jobs for this pipeline and returns how many succeeded
func (w *Worker) RetryFailed(ctx context.Context) (int, error) {
	jobs, err := w.repo.GetFailedFileJobs(ctx, w.pipeline.Name(), w.config.RetryAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed jobs: %w", err)
	}

	if len(jobs) == 0 {
		log.Info().Str("pipeline", w.pipeline.Name()).Msg("no failed jobs to retry")
		return 0, nil
	}

	log.Info().Str("pipeline", w.pipeline.Name()).Int("jobs", len(jobs)).Msg("retrying failed jobs")

	jobsByRun := make(map[int64][]*FileJob)
	runOrder := make([]int64, 0)
	for _, job := range jobs {
		if _, ok := jobsByRun[job.PipelineRunID]; !ok {
			runOrder = append(runOrder, job.PipelineRunID)
		}
		jobsByRun[job.PipelineRunID] = append(jobsByRun[job.PipelineRunID], job)
	}

	retried := 0
	for _, runID := range runOrder {
		runJobs := jobsByRun[runID]
		run, err := w.repo.GetPipelineRun(ctx, runID)
		if err != nil {
			log.Error().Err(err).Int64("run_id", runID).Msg("failed to load run")
			continue
		}

		before := run.ProcessedFiles
		w.aggregator = w.newAggregator(run.Date)

		perr := w.processFilesParallel(ctx, run, runJobs)
		if err := w.aggregator.Finalize(ctx); err != nil {
			log.Error().Err(err).Int64("run_id", runID).Msg("failed to finalize retried run")
			w.finishRun(ctx, run, StatusFailed, fmt.Sprintf("aggregation failed: %v", err))
			continue
		}
		retried += run.ProcessedFiles - before

		if perr != nil {
			log.Warn().Err(perr).Int64("run_id", runID).Msg("some retried jobs failed again")
			w.finishRun(ctx, run, StatusFailed, perr.Error())
			continue
		}
		if run.ProcessedFiles >= run.TotalFiles {
			w.finishRun(ctx, run, StatusCompleted, "")
		}
	}

	return retried, nil
}
