package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// Column names every ledger file must carry (case-insensitive, surrounding space ignored).
const (
	ColDate         = "date"
	ColOrganization = "organization"
	ColLocation     = "location"
	ColItem         = "item"
	ColOpeningStock = "opening_stock"
	ColReceived     = "received"
	ColIssued       = "issued"
	ColClosingStock = "closing_stock"
	ColLeadTimeDays = "lead_time_days"
)

// ColumnSpec documents one required column for upload help text.
type ColumnSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// RequiredColumns lists the ledger schema in file order.
var RequiredColumns = []ColumnSpec{
	{Name: ColDate, Type: "DATE (YYYY-MM-DD)", Description: "Transaction date", Example: "2024-01-15"},
	{Name: ColOrganization, Type: "STRING", Description: "Organization name", Example: "City Hospital"},
	{Name: ColLocation, Type: "STRING", Description: "Warehouse/clinic location", Example: "Emergency Unit"},
	{Name: ColItem, Type: "STRING", Description: "Product name", Example: "Paracetamol"},
	{Name: ColOpeningStock, Type: "INTEGER", Description: "Stock at start of day", Example: "100"},
	{Name: ColReceived, Type: "INTEGER", Description: "Units received", Example: "50"},
	{Name: ColIssued, Type: "INTEGER", Description: "Units used/distributed", Example: "30"},
	{Name: ColClosingStock, Type: "INTEGER", Description: "Stock at end of day", Example: "120"},
	{Name: ColLeadTimeDays, Type: "INTEGER", Description: "Supplier delivery time", Example: "7"},
}

var integerColumns = []string{ColOpeningStock, ColReceived, ColIssued, ColClosingStock, ColLeadTimeDays}

var stringColumns = []string{ColOrganization, ColLocation, ColItem}

var dateLayouts = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01-02-06",
}

// ValidationReport is the outcome of checking a ledger table.
type ValidationReport struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
	TotalRows int      `json:"total_rows"`
}

// ValidationError carries a failed report through error returns.
type ValidationError struct {
	Report ValidationReport
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger validation failed: %s", strings.Join(e.Report.Errors, "; "))
}

type columnIndex map[string]int

func indexColumns(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}
	return idx
}

func (c columnIndex) get(record []string, col string) string {
	i, ok := c[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// Validate checks a table against the ledger schema without producing rows.
func Validate(t Table) ValidationReport {
	_, report := Parse(t)
	return report
}

// Parse validates a table and converts it to ledger rows. Rows are only returned
// when the report is valid; warnings do not block.
func Parse(t Table) ([]domain.LedgerRow, ValidationReport) {
	report := ValidationReport{
		Errors:    make([]string, 0),
		Warnings:  make([]string, 0),
		TotalRows: len(t.Records),
	}

	idx := indexColumns(t.Header)
	missing := make([]string, 0)
	for _, col := range RequiredColumns {
		if _, ok := idx[col.Name]; !ok {
			missing = append(missing, col.Name)
		}
	}
	if len(missing) > 0 {
		report.Errors = append(report.Errors, fmt.Sprintf("Missing required columns: %s", strings.Join(missing, ", ")))
		return nil, report
	}

	if len(t.Records) == 0 {
		report.Errors = append(report.Errors, "CSV file is empty (no data rows)")
		return nil, report
	}

	badDates := newColumnProblems()
	nonNumeric := newColumnProblems()
	negative := newColumnProblems()
	empty := newColumnProblems()
	mismatches := 0

	rows := make([]domain.LedgerRow, 0, len(t.Records))
	for i, record := range t.Records {
		// header is line 1
		line := i + 2
		row := domain.LedgerRow{
			Organization: idx.get(record, ColOrganization),
			Location:     idx.get(record, ColLocation),
			Item:         idx.get(record, ColItem),
		}

		date, ok := parseDate(idx.get(record, ColDate))
		if !ok {
			badDates.add(ColDate, line)
		}
		row.Date = date

		values := make(map[string]int, len(integerColumns))
		numericOK := true
		for _, col := range integerColumns {
			v, ok := parseInt(idx.get(record, col))
			if !ok {
				nonNumeric.add(col, line)
				numericOK = false
				continue
			}
			if v < 0 {
				negative.add(col, line)
			}
			values[col] = v
		}
		row.OpeningStock = values[ColOpeningStock]
		row.Received = values[ColReceived]
		row.Issued = values[ColIssued]
		row.ClosingStock = values[ColClosingStock]
		row.LeadTimeDays = values[ColLeadTimeDays]

		if numericOK && !row.Balanced() {
			mismatches++
		}

		for _, col := range stringColumns {
			if idx.get(record, col) == "" {
				empty.add(col, line)
			}
		}

		rows = append(rows, row)
	}

	report.Errors = append(report.Errors, badDates.render(func(col string, n, first int) string {
		return fmt.Sprintf("Invalid date format in '%s' column on %d row(s), first at line %d. Expected YYYY-MM-DD.", col, n, first)
	})...)
	report.Errors = append(report.Errors, nonNumeric.render(func(col string, n, first int) string {
		return fmt.Sprintf("Column '%s' has %d non-numeric value(s), first at line %d", col, n, first)
	})...)
	report.Errors = append(report.Errors, negative.render(func(col string, n, first int) string {
		return fmt.Sprintf("Column '%s' has %d negative value(s) - stock cannot be negative", col, n)
	})...)
	report.Errors = append(report.Errors, empty.render(func(col string, n, first int) string {
		return fmt.Sprintf("Column '%s' has %d empty value(s), first at line %d", col, n, first)
	})...)

	if mismatches > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"%d row(s) where closing_stock != opening_stock + received - issued. This may indicate data entry errors.",
			mismatches,
		))
	}

	report.Valid = len(report.Errors) == 0
	if !report.Valid {
		return nil, report
	}
	return rows, report
}

// columnProblems counts offending rows per column, keeping first-seen column order.
type columnProblems struct {
	order []string
	count map[string]int
	first map[string]int
}

func newColumnProblems() *columnProblems {
	return &columnProblems{count: make(map[string]int), first: make(map[string]int)}
}

func (p *columnProblems) add(col string, line int) {
	if _, ok := p.count[col]; !ok {
		p.order = append(p.order, col)
		p.first[col] = line
	}
	p.count[col]++
}

func (p *columnProblems) render(format func(col string, n, first int) string) []string {
	out := make([]string, 0, len(p.order))
	for _, col := range p.order {
		out = append(out, format(col, p.count[col], p.first[col]))
	}
	return out
}

func parseDate(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

// parseInt accepts plain integers, thousands separators and integral floats such as "12.0".
// Values outside the INTEGER column range are rejected.
func parseInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	v = strings.ReplaceAll(v, ",", "")
	if n, err := strconv.ParseInt(v, 10, 32); err == nil {
		return int(n), true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
