package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline"
)

// SnapshotLayout is the optional date prefix on ledger file names, e.g. 20240115_city_hospital.csv.
const SnapshotLayout = "20060102"

// Pipeline reads and validates daily ledger files for the ingestion worker.
type Pipeline struct{}

var _ pipeline.Pipeline = (*Pipeline)(nil)

// NewPipeline creates a ledger pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Name returns the unique identifier of this pipeline.
func (p *Pipeline) Name() string {
	return "ledger"
}

// GetOutputTable returns the table rows are written to.
func (p *Pipeline) GetOutputTable() string {
	return "inventory_ledger"
}

// GetSnapshotDate extracts the YYYYMMDD prefix from the file name.
func (p *Pipeline) GetSnapshotDate(filename string) (time.Time, error) {
	base := filepath.Base(filename)
	if len(base) < len(SnapshotLayout) {
		return time.Time{}, fmt.Errorf("filename %s does not start with a %s date", filename, SnapshotLayout)
	}
	return time.Parse(SnapshotLayout, base[:len(SnapshotLayout)])
}

// Validate checks the file exists and has a readable extension.
func (p *Pipeline) Validate(inputFile string) error {
	info, err := os.Stat(inputFile)
	if err != nil {
		return fmt.Errorf("cannot stat input file %s: %w", inputFile, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected file", inputFile)
	}
	if !SupportedExtension(inputFile) {
		return fmt.Errorf("%w: %s (csv and xlsx supported)", ErrUnsupportedFormat, inputFile)
	}
	return nil
}

// Transform reads one ledger file and returns its rows. A schema or value problem
// is returned as *ValidationError.
func (p *Pipeline) Transform(ctx context.Context, inputFile string) ([]domain.LedgerRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := ReadFile(inputFile)
	if err != nil {
		return nil, err
	}
	rows, report := Parse(table)
	if !report.Valid {
		return nil, &ValidationError{Report: report}
	}
	return rows, nil
}
