package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/stockrisk/backend-go/internal/cache"
	"github.com/andresuchdata/stockrisk/backend-go/internal/config"
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline/ledger"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memLedger struct {
	mu   sync.Mutex
	rows []domain.LedgerRow
}

func (m *memLedger) ListRows(_ context.Context, f domain.LedgerFilter) ([]domain.LedgerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LedgerRow, 0)
	for _, r := range m.rows {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memLedger) InsertRows(_ context.Context, rows []domain.LedgerRow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return int64(len(rows)), nil
}

func (m *memLedger) FilterOptions(context.Context) (domain.FilterOptions, error) {
	return domain.FilterOptions{Organizations: []string{"City Hospital"}}, nil
}

func (m *memLedger) StockHistory(context.Context, domain.GroupKey, int) ([]domain.StockPoint, error) {
	return nil, nil
}

type memOrders struct {
	mu      sync.Mutex
	actions []domain.ActionLog
}

func (m *memOrders) CreateOrder(_ context.Context, o *domain.Order) error {
	o.ID = 1
	o.CreatedAt = time.Now()
	return nil
}

func (m *memOrders) ListOrders(context.Context, domain.GroupKey, int) ([]domain.Order, error) {
	return nil, nil
}

func (m *memOrders) LogAction(_ context.Context, a *domain.ActionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	m.actions = append(m.actions, *a)
	return nil
}

func (m *memOrders) RecentActions(context.Context, time.Time, int) ([]domain.ActionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ActionLog(nil), m.actions...), nil
}

type nopRunStore struct {
	next int64
	jobs []pipeline.FileJob
}

func (s *nopRunStore) CreatePipelineRun(_ context.Context, run *pipeline.PipelineRun) error {
	s.next++
	run.ID = s.next
	return nil
}
func (s *nopRunStore) UpdatePipelineRun(context.Context, *pipeline.PipelineRun) error { return nil }
func (s *nopRunStore) GetPipelineRun(context.Context, int64) (*pipeline.PipelineRun, error) {
	return nil, nil
}
func (s *nopRunStore) GetPipelineRunByDate(context.Context, string, time.Time) (*pipeline.PipelineRun, error) {
	return nil, nil
}
func (s *nopRunStore) CreateFileJob(_ context.Context, job *pipeline.FileJob) error {
	s.next++
	job.ID = s.next
	s.jobs = append(s.jobs, *job)
	return nil
}
func (s *nopRunStore) UpdateFileJob(context.Context, *pipeline.FileJob) error { return nil }
func (s *nopRunStore) GetFailedFileJobs(context.Context, string, int) ([]*pipeline.FileJob, error) {
	return nil, nil
}
func (s *nopRunStore) IncrementProcessedFiles(context.Context, int64) error { return nil }
func (s *nopRunStore) AddRowCount(context.Context, int64, int) error      { return nil }
func (s *nopRunStore) GetRecentRuns(context.Context, int) ([]*pipeline.PipelineRun, error) {
	return []*pipeline.PipelineRun{}, nil
}
func (s *nopRunStore) GetFileJobsByRunID(_ context.Context, runID int64) ([]*pipeline.FileJob, error) {
	out := make([]*pipeline.FileJob, 0)
	for i := range s.jobs {
		if s.jobs[i].PipelineRunID == runID {
			job := s.jobs[i]
			out = append(out, &job)
		}
	}
	return out, nil
}
func (s *nopRunStore) GetPipelineStats(context.Context, string, time.Time) (*pipeline.PipelineMetrics, error) {
	return &pipeline.PipelineMetrics{FilesProcessed: int64(len(s.jobs))}, nil
}

func ledgerRow(d int, loc, item string, opening, issued, closing, lead int) domain.LedgerRow {
	return domain.LedgerRow{
		Date:         time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC),
		Organization: "City Hospital", Location: loc, Item: item,
		OpeningStock: opening, Issued: issued, ClosingStock: closing, LeadTimeDays: lead,
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, *memOrders) {
	t.Helper()
	repo := &memLedger{rows: []domain.LedgerRow{
		ledgerRow(1, "Emergency Unit", "Paracetamol", 76, 12, 64, 7),
		ledgerRow(2, "Emergency Unit", "Paracetamol", 64, 14, 50, 7),
		ledgerRow(1, "Clinic", "Gloves", 30, 5, 25, 5),
		ledgerRow(2, "Clinic", "Gloves", 25, 5, 20, 5),
	}}
	orders := &memOrders{}
	sessions := cache.NewMemorySessionStore(time.Hour)
	store := config.NewCriticalityStore("")

	orderSvc := service.NewOrderService(orders, sessions)
	runs := &nopRunStore{}
	orch := pipeline.NewOrchestrator(runs, repo, pipeline.DefaultPipelineConfig("ledger"))
	services := &Services{
		RiskService:   service.NewRiskService(repo, store, sessions, nil, config.RankingConfig{DefaultLimit: 5, MaxLimit: 20}),
		IngestService: service.NewIngestService(orch, ledger.NewPipeline(), service.IngestOptions{UploadDir: t.TempDir(), Actions: orderSvc, Runs: runs}),
		OrderService:  orderSvc,
		ConfigService: service.NewConfigService(store, orderSvc),
	}
	return NewRouter(services, RouterOptions{AllowedOrigins: []string{"*"}, MaxUploadMB: 1}), orders
}

func do(t *testing.T, r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, path := range []string{"/api/v1/health", "/metrics"} {
		w := do(t, r, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, w.Code)
		}
	}
}

func TestRiskEndpointStatusCodes(t *testing.T) {
	r, _ := newTestRouter(t)
	tests := []struct {
		name string
		path string
		want int
	}{
		{"overview", "/api/v1/risk/overview", http.StatusOK},
		{"bad date", "/api/v1/risk/overview?from=15-01-2024", http.StatusBadRequest},
		{"inverted window", "/api/v1/risk/alerts?from=2024-01-05&to=2024-01-01", http.StatusBadRequest},
		{"reorders", "/api/v1/risk/reorders?organization=City+Hospital", http.StatusOK},
		{"heatmap", "/api/v1/risk/heatmap", http.StatusOK},
		{"whatif missing item", "/api/v1/risk/whatif?organization=City+Hospital&location=Clinic", http.StatusBadRequest},
		{"whatif unknown", "/api/v1/risk/whatif?organization=City+Hospital&location=Clinic&item=Rice", http.StatusNotFound},
		{"whatif", "/api/v1/risk/whatif?organization=City+Hospital&location=Clinic&item=Gloves&order_qty=20", http.StatusOK},
		{"whatif bad qty", "/api/v1/risk/whatif?organization=City+Hospital&location=Clinic&item=Gloves&order_qty=ten", http.StatusBadRequest},
		{"history empty", "/api/v1/risk/history?organization=City+Hospital&location=Clinic&item=Gloves", http.StatusNotFound},
		{"filters", "/api/v1/filters", http.StatusOK},
		{"export", "/api/v1/risk/export", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

type actionsResponse struct {
	Actions []domain.RankedEntry `json:"actions"`
}

func TestActionsRespectSessionOrderedMarks(t *testing.T) {
	r, orders := newTestRouter(t)

	w := do(t, r, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("create session status = %d", w.Code)
	}
	var sess struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil || sess.SessionID == "" {
		t.Fatalf("session body %s: %v", w.Body.String(), err)
	}

	body := `{"organization":"City Hospital","location":"Emergency Unit","item":"Paracetamol"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/ordered", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if w := do(t, r, req); w.Code != http.StatusNoContent {
		t.Fatalf("mark status = %d (%s)", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/risk/actions", nil)
	req.Header.Set("X-Session-ID", sess.SessionID)
	w = do(t, r, req)
	var resp actionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Key.Item != "Gloves" {
		t.Fatalf("actions = %+v", resp.Actions)
	}

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/risk/actions", nil))
	resp = actionsResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Actions) != 2 || resp.Actions[0].Key.Item != "Paracetamol" {
		t.Fatalf("actions without session = %+v", resp.Actions)
	}

	if len(orders.actions) != 1 || orders.actions[0].ActionType != domain.ActionOrderMarked {
		t.Errorf("action log = %+v", orders.actions)
	}
}

func multipartBody(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestLedgerValidateAndUpload(t *testing.T) {
	r, _ := newTestRouter(t)

	body, ct := multipartBody(t, "ledger.csv", "date,organization\n2024-01-01,City Hospital\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/validate", body)
	req.Header.Set("Content-Type", ct)
	w := do(t, r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d", w.Code)
	}
	var report ledger.ValidationReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Error("report should be invalid")
	}

	body, ct = multipartBody(t, "ledger.csv", "date,organization\n2024-01-01,City Hospital\n")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/ledger/upload", body)
	req.Header.Set("Content-Type", ct)
	if w := do(t, r, req); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid upload status = %d", w.Code)
	}

	good := "date,organization,location,item,opening_stock,received,issued,closing_stock,lead_time_days\n" +
		"2024-01-03,City Hospital,Ward,Rice,100,0,2,98,5\n"
	body, ct = multipartBody(t, "20240103_ward.csv", good)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/ledger/upload", body)
	req.Header.Set("Content-Type", ct)
	if w := do(t, r, req); w.Code != http.StatusCreated {
		t.Errorf("upload status = %d (%s)", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/ledger/upload", strings.NewReader("x"))
	if w := do(t, r, req); w.Code != http.StatusBadRequest {
		t.Errorf("missing file status = %d", w.Code)
	}
}

func TestIngestRunEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	good := "date,organization,location,item,opening_stock,received,issued,closing_stock,lead_time_days\n" +
		"2024-01-03,City Hospital,Ward,Rice,100,0,2,98,5\n"
	body, ct := multipartBody(t, "20240103_ward.csv", good)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/upload", body)
	req.Header.Set("Content-Type", ct)
	if w := do(t, r, req); w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d (%s)", w.Code, w.Body.String())
	}

	w := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/runs/1/files", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("run files status = %d", w.Code)
	}
	var files struct {
		RunID int64               `json:"run_id"`
		Files []*pipeline.FileJob `json:"files"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &files); err != nil {
		t.Fatal(err)
	}
	if files.RunID != 1 || len(files.Files) != 1 {
		t.Errorf("run files = %+v", files)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/ingest/runs/abc/files", http.StatusBadRequest},
		{"/api/v1/ingest/runs/0/files", http.StatusBadRequest},
		{"/api/v1/ingest/stats?hours=x", http.StatusBadRequest},
		{"/api/v1/ingest/stats?hours=48", http.StatusOK},
	}
	for _, tt := range tests {
		if w := do(t, r, httptest.NewRequest(http.MethodGet, tt.path, nil)); w.Code != tt.want {
			t.Errorf("%s status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestActionsPresentRoundedFigures(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/risk/actions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// Paracetamol: 50 on hand at 13 a day.
	if body := w.Body.String(); !strings.Contains(body, `"days_left":3.85`) || strings.Contains(body, "3.846") {
		t.Errorf("days_left not rounded in %s", body)
	}
}

func TestCriticalityConfigEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	put := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/config/criticality", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return do(t, r, req)
	}

	if w := put(`{"location_rules":[{"pattern":"","score":4}]}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid config status = %d", w.Code)
	}
	if w := put(`not json`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", w.Code)
	}

	w := put(`{"item_rules":[{"items":["Gloves"],"score":20}],"default_score":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d (%s)", w.Code, w.Body.String())
	}
	var snap config.CriticalitySnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Version != 1 {
		t.Errorf("version = %d, want 1", snap.Version)
	}

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/risk/actions?limit=1", nil))
	var resp actionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Key.Item != "Gloves" {
		t.Errorf("top action after raising Gloves = %+v", resp.Actions)
	}

	w = do(t, r, httptest.NewRequest(http.MethodPost, "/api/v1/config/criticality/reset", nil))
	if w.Code != http.StatusOK {
		t.Errorf("reset status = %d", w.Code)
	}
}

func TestCreateOrder(t *testing.T) {
	r, orders := newTestRouter(t)

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-Name", "pharmacist")
		return do(t, r, req).Code
	}

	if code := post(`{"organization":"City Hospital","location":"Clinic","item":"Gloves","qty":0}`); code != http.StatusBadRequest {
		t.Errorf("zero qty status = %d", code)
	}
	if code := post(`{"organization":"City Hospital","location":"Clinic","item":"Gloves","qty":15,"priority":"high"}`); code != http.StatusCreated {
		t.Errorf("create status = %d", code)
	}
	if len(orders.actions) != 1 || orders.actions[0].UserName != "pharmacist" {
		t.Errorf("actions = %+v", orders.actions)
	}

	w := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/actions/recent?hours=2", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ORDER_PLACED") {
		t.Errorf("recent actions = %d %s", w.Code, w.Body.String())
	}
}
