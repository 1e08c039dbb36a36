package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

const header = "date,organization,location,item,opening_stock,received,issued,closing_stock,lead_time_days\n"

func readString(t *testing.T, body string) Table {
	t.Helper()
	table, err := Read(strings.NewReader(body), "ledger.csv")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return table
}

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		valid        bool
		errContains  string
		warnContains string
		rows         int
	}{
		{
			name:  "valid file",
			body:  header + "2024-01-15,City Hospital,Emergency Unit,Paracetamol,100,50,30,120,7\n2024-01-16,City Hospital,Emergency Unit,Paracetamol,120,0,20,100,7\n",
			valid: true,
			rows:  2,
		},
		{
			name:        "missing columns",
			body:        "date,organization,location,item\n2024-01-15,A,B,C\n",
			errContains: "Missing required columns: opening_stock, received, issued, closing_stock, lead_time_days",
		},
		{
			name:        "empty file",
			body:        header,
			errContains: "empty",
		},
		{
			name:        "bad date",
			body:        header + "15th Jan,City Hospital,Ward,Rice,1,0,1,0,3\n",
			errContains: "Invalid date format in 'date'",
		},
		{
			name:        "non numeric",
			body:        header + "2024-01-15,City Hospital,Ward,Rice,abc,0,1,0,3\n",
			errContains: "Column 'opening_stock' has 1 non-numeric value(s)",
		},
		{
			name:        "negative value",
			body:        header + "2024-01-15,City Hospital,Ward,Rice,1,0,1,-2,3\n",
			errContains: "Column 'closing_stock' has 1 negative value(s)",
		},
		{
			name:        "empty item",
			body:        header + "2024-01-15,City Hospital,Ward,,1,0,1,0,3\n",
			errContains: "Column 'item' has 1 empty value(s)",
		},
		{
			name:         "closing mismatch is a warning",
			body:         header + "2024-01-15,City Hospital,Ward,Rice,10,0,1,5,3\n",
			valid:        true,
			warnContains: "1 row(s) where closing_stock",
			rows:         1,
		},
		{
			name:  "header is case insensitive and trimmed",
			body:  " DATE ,Organization,LOCATION,Item,Opening_Stock,received,issued,closing_stock,lead_time_days\n2024-01-15,A,B,C,1,0,1,0,3\n",
			valid: true,
			rows:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, report := Parse(readString(t, tt.body))
			if report.Valid != tt.valid {
				t.Fatalf("valid = %v, want %v (errors %v)", report.Valid, tt.valid, report.Errors)
			}
			if len(rows) != tt.rows {
				t.Errorf("rows = %d, want %d", len(rows), tt.rows)
			}
			if tt.errContains != "" && !containsAny(report.Errors, tt.errContains) {
				t.Errorf("errors %v do not mention %q", report.Errors, tt.errContains)
			}
			if tt.warnContains != "" && !containsAny(report.Warnings, tt.warnContains) {
				t.Errorf("warnings %v do not mention %q", report.Warnings, tt.warnContains)
			}
		})
	}
}

func TestParseRowValues(t *testing.T) {
	rows, report := Parse(readString(t, header+"2024-01-15,City Hospital,Emergency Unit,Paracetamol,\"1,000\",50,30.0,1020,7\n"))
	if !report.Valid {
		t.Fatalf("unexpected errors %v", report.Errors)
	}
	r := rows[0]
	if !r.Date.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", r.Date)
	}
	if r.OpeningStock != 1000 || r.Issued != 30 || r.ClosingStock != 1020 || r.LeadTimeDays != 7 {
		t.Errorf("unexpected row %#v", r)
	}
	if r.Organization != "City Hospital" || r.Location != "Emergency Unit" || r.Item != "Paracetamol" {
		t.Errorf("unexpected key %#v", r.Key())
	}
}

func TestParseIntRange(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{"1,500", 1500, true},
		{"12.0", 12, true},
		{"2147483647", 2147483647, true},
		{"2147483648", 0, false},
		{"1e30", 0, false},
		{"-1e30", 0, false},
		{"12.5", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseInt(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseInt(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	_, report := Parse(readString(t, header+"2024-01-15,City Hospital,Emergency Unit,Paracetamol,1e30,50,30,1020,7\n"))
	if report.Valid {
		t.Fatal("expected an out-of-range opening stock to be rejected")
	}
	if !strings.Contains(strings.Join(report.Errors, "\n"), "Column 'opening_stock' has 1 non-numeric value(s)") {
		t.Errorf("unexpected errors %v", report.Errors)
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	values := [][]interface{}{
		{"date", "organization", "location", "item", "opening_stock", "received", "issued", "closing_stock", "lead_time_days"},
		{"2024-01-15", "City Hospital", "Ward", "Rice", 10, 0, 2, 8, 5},
	}
	for i, row := range values {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "20240115_city.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	p := NewPipeline()
	if err := p.Validate(path); err != nil {
		t.Fatalf("validate: %v", err)
	}
	rows, err := p.Transform(context.Background(), path)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(rows) != 1 || rows[0].ClosingStock != 8 || rows[0].Item != "Rice" {
		t.Fatalf("unexpected rows %#v", rows)
	}
}

func TestPipelineTransformReturnsValidationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	if err := os.WriteFile(path, []byte(header+"2024-01-15,A,B,C,x,0,1,0,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewPipeline().Transform(context.Background(), path)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Report.Valid || len(vErr.Report.Errors) == 0 {
		t.Errorf("unexpected report %#v", vErr.Report)
	}
}

func TestPipelineFileChecks(t *testing.T) {
	p := NewPipeline()
	dir := t.TempDir()

	if err := p.Validate(dir); err == nil {
		t.Error("expected directory to be rejected")
	}
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(txt); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	date, err := p.GetSnapshotDate("/tmp/20240131_ledger.csv")
	if err != nil || !date.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("snapshot date = %v, %v", date, err)
	}
	if _, err := p.GetSnapshotDate("ledger.csv"); err == nil {
		t.Error("expected error for name without date prefix")
	}
}

func containsAny(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
