package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// Orchestrator coordinates running a Pipeline over a set of local files grouped by snapshot date.
type Orchestrator struct {
	repo  RunStore
	sink  LedgerSink
	cfg   PipelineConfig
	now   func() time.Time
	makeW func(p Pipeline, cfg PipelineConfig, repo RunStore, sink LedgerSink) *Worker
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(repo RunStore, sink LedgerSink, cfg PipelineConfig) *Orchestrator {
	return &Orchestrator{
		repo:  repo,
		sink:  sink,
		cfg:   cfg,
		now:   time.Now,
		makeW: NewWorker,
	}
}

// Run groups the provided files by snapshot date (using p.GetSnapshotDate) and
// runs a Worker batch for each date, oldest first. Files without a date prefix
// are filed under the current day.
func (o *Orchestrator) Run(ctx context.Context, p Pipeline, files []string) (RunResult, error) {
	result := RunResult{Runs: make([]*PipelineRun, 0)}
	if len(files) == 0 {
		return result, nil
	}

	runDate := o.now().UTC().Truncate(24 * time.Hour)

	byDate := make(map[time.Time][]string)
	for _, f := range files {
		date, err := p.GetSnapshotDate(filepath.Base(f))
		if err != nil {
			log.Debug().Str("file", f).Msg("no snapshot date in file name, using run date")
			date = runDate
		}

		date = date.Truncate(24 * time.Hour)
		byDate[date] = append(byDate[date], f)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	worker := o.makeW(p, o.cfg, o.repo, o.sink)

	for _, date := range dates {
		run, err := worker.ProcessBatch(ctx, date, byDate[date])
		if run != nil {
			result.Runs = append(result.Runs, run)
		}
		result.TotalRows += worker.FlushedRows()
		if err != nil {
			return result, fmt.Errorf("failed to process batch for %s: %w", date.Format(domain.DateLayout), err)
		}
	}

	return result, nil
}

// RetryFailed retries failed file jobs for p.
func (o *Orchestrator) RetryFailed(ctx context.Context, p Pipeline) (int, error) {
	return o.makeW(p, o.cfg, o.repo, o.sink).RetryFailed(ctx)
}
