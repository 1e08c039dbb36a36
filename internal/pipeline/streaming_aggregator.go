package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// FlushFunc writes a batch of buffered rows and returns how many were stored.
type FlushFunc func(ctx context.Context, rows []domain.LedgerRow) (int64, error)

// StreamingAggregator buffers transformed ledger rows and flushes them in batches
type StreamingAggregator struct {
	pipeline      Pipeline
	config        PipelineConfig
	date          time.Time
	buffer        [][]domain.LedgerRow
	bufferRows    int
	flushedRows   int64
	mu            sync.Mutex
	flushCallback FlushFunc
	lastFlush     time.Time
}

// NewStreamingAggregator creates a new streaming aggregator for a pipeline
func NewStreamingAggregator(
	pipeline Pipeline,
	config PipelineConfig,
	date time.Time,
	flushCallback FlushFunc,
) *StreamingAggregator {
	return &StreamingAggregator{
		pipeline:      pipeline,
		config:        config,
		date:          date,
		buffer:        make([][]domain.LedgerRow, 0, config.BatchSize),
		flushCallback: flushCallback,
		lastFlush:     time.Now(),
	}
}

// AddFileData adds transformed rows from a single file to the buffer
func (sa *StreamingAggregator) AddFileData(ctx context.Context, rows []domain.LedgerRow) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	sa.buffer = append(sa.buffer, rows)
	sa.bufferRows += len(rows)

	log.Debug().
		Str("pipeline", sa.pipeline.Name()).
		Int("files", len(sa.buffer)).
		Int("rows", sa.bufferRows).
		Msg("buffered ledger rows")

	shouldFlush := (sa.config.BatchSize > 0 && len(sa.buffer) >= sa.config.BatchSize) ||
		(sa.config.BatchRows > 0 && sa.bufferRows >= sa.config.BatchRows) ||
		(sa.config.FlushInterval > 0 && time.Since(sa.lastFlush) >= sa.config.FlushInterval)

	if shouldFlush {
		return sa.flushLocked(ctx)
	}

	return nil
}

// Finalize flushes any remaining buffered rows
func (sa *StreamingAggregator) Finalize(ctx context.Context) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if len(sa.buffer) == 0 {
		log.Debug().Str("pipeline", sa.pipeline.Name()).Msg("no buffered rows to finalize")
		return nil
	}

	return sa.flushLocked(ctx)
}

// flushLocked hands the buffer to the flush callback.
// Must be called with sa.mu locked
func (sa *StreamingAggregator) flushLocked(ctx context.Context) error {
	if len(sa.buffer) == 0 {
		return nil
	}

	allRows := make([]domain.LedgerRow, 0, sa.bufferRows)
	for _, fileRows := range sa.buffer {
		allRows = append(allRows, fileRows...)
	}

	if sa.flushCallback != nil {
		n, err := sa.flushCallback(ctx, allRows)
		if err != nil {
			return fmt.Errorf("flush callback failed: %w", err)
		}
		sa.flushedRows += n
	}

	log.Info().
		Str("pipeline", sa.pipeline.Name()).
		Str("date", sa.date.Format(domain.DateLayout)).
		Int("files", len(sa.buffer)).
		Int("rows", len(allRows)).
		Msg("flushed ledger rows")

	sa.buffer = sa.buffer[:0]
	sa.bufferRows = 0
	sa.lastFlush = time.Now()

	return nil
}

// GetBufferStats returns current buffer statistics
func (sa *StreamingAggregator) GetBufferStats() (fileCount int, rowCount int) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return len(sa.buffer), sa.bufferRows
}

// FlushedRows returns the number of rows the flush callback reported as stored.
func (sa *StreamingAggregator) FlushedRows() int64 {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return sa.flushedRows
}
