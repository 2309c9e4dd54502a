package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iwvelando/capex-depreciation/internal/calculation"
	"github.com/iwvelando/capex-depreciation/internal/importer"
	"github.com/iwvelando/capex-depreciation/internal/ledger"
	"github.com/iwvelando/capex-depreciation/internal/metrics"
	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/iwvelando/capex-depreciation/pkg/datetime"
	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeCalculator struct {
	runErr    error
	previewed []depreciation.Record
	batch     calculation.BatchReport
	ran       []string
}

func (f *fakeCalculator) Run(_ context.Context, id string) (depreciation.Kind, error) {
	f.ran = append(f.ran, id)
	if f.runErr != nil {
		return "", f.runErr
	}
	return depreciation.KindYears, nil
}

func (f *fakeCalculator) Preview(_ context.Context, id string) (depreciation.Method, []depreciation.Record, error) {
	if f.runErr != nil {
		return depreciation.Method{}, nil, f.runErr
	}
	return depreciation.Method{Kind: depreciation.KindPercentage, Rate: decimal.NewFromInt(24)}, f.previewed, nil
}

func (f *fakeCalculator) RunAll(context.Context) (calculation.BatchReport, error) {
	return f.batch, nil
}

type fakeRepository struct {
	projects  map[string]store.Project
	schedules map[string]store.Schedule
	filter    store.ProjectFilter
	healthErr error
}

func (f *fakeRepository) SearchProjects(_ context.Context, filter store.ProjectFilter) ([]store.Project, error) {
	f.filter = filter
	var out []store.Project
	for _, p := range f.projects {
		if filter.Branch == "" || p.Branch == filter.Branch {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepository) Project(_ context.Context, id string) (store.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return store.Project{}, fmt.Errorf("%w: %s", ledger.ErrProjectNotFound, id)
	}
	return p, nil
}

func (f *fakeRepository) DepreciationSchedule(_ context.Context, id string) (store.Schedule, error) {
	return f.schedules[id], nil
}

func (f *fakeRepository) ProjectReport(ctx context.Context, id string) (store.Report, error) {
	if _, err := f.Project(ctx, id); err != nil {
		return store.Report{}, err
	}
	return store.Report{ProjectID: id, TotalInvestment: decimal.NewFromInt(1200)}, nil
}

func (f *fakeRepository) PortfolioReport(context.Context) (store.Report, error) {
	return store.Report{TotalInvestment: decimal.NewFromInt(5000)}, nil
}

func (f *fakeRepository) HealthCheck(context.Context) error {
	return f.healthErr
}

type fakeImporter struct {
	kind importer.Kind
	body []byte
	err  error
}

func (f *fakeImporter) Import(_ context.Context, kind importer.Kind, r io.Reader) (importer.Result, error) {
	f.kind = kind
	f.body, _ = io.ReadAll(r)
	if f.err != nil {
		return importer.Result{}, f.err
	}
	return importer.Result{Kind: kind, Rows: 2}, nil
}

type fixture struct {
	calc     *fakeCalculator
	repo     *fakeRepository
	importer *fakeImporter
	metrics  *metrics.Collector
	handler  http.Handler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		calc: &fakeCalculator{},
		repo: &fakeRepository{
			projects: map[string]store.Project{
				"P-1": {ID: "P-1", Branch: "North"},
				"P-2": {ID: "P-2", Branch: "South"},
			},
			schedules: map[string]store.Schedule{
				"P-1": {
					ProjectID: "P-1",
					Kind:      depreciation.KindYears,
					Records: []depreciation.Record{{
						Period:    datetime.Yearly(2025),
						Base:      decimal.NewFromInt(1200),
						Charge:    decimal.NewFromInt(120),
						Remaining: decimal.NewFromInt(1080),
					}},
				},
			},
		},
		importer: &fakeImporter{},
		metrics:  metrics.New(),
	}
	f.handler = NewHandler(zap.NewNop(), Dependencies{
		Calculator: f.calc,
		Repository: f.repo,
		Importer:   f.importer,
		Metrics:    f.metrics,
	}, cfg, "1.2.3")
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if rr := f.do(t, http.MethodGet, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	f.repo.healthErr = errors.New("connection refused")
	if rr := f.do(t, http.MethodGet, "/health"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rr := f.do(t, http.MethodGet, "/api/version")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]string
	decodeBody(t, rr, &resp)
	if resp["version"] != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %q", resp["version"])
	}
}

func TestListProjectsByBranch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rr := f.do(t, http.MethodGet, "/api/projects?branch=North&q=crusher")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var projects []store.Project
	decodeBody(t, rr, &projects)
	if len(projects) != 1 || projects[0].ID != "P-1" {
		t.Fatalf("unexpected projects %+v", projects)
	}
	if f.repo.filter.Query != "crusher" || f.repo.filter.Branch != "North" {
		t.Fatalf("filter not forwarded: %+v", f.repo.filter)
	}

	rr = f.do(t, http.MethodGet, "/api/projects?branch=West")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty JSON array, got %s", rr.Body.String())
	}
}

func TestGetProject(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if rr := f.do(t, http.MethodGet, "/api/projects/P-1"); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(t, http.MethodGet, "/api/projects/missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCalculate(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rr := f.do(t, http.MethodPost, "/api/projects/P-1/calculate")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp scheduleResponse
	decodeBody(t, rr, &resp)
	if !resp.Persisted || resp.Method != "years" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Records) != 1 || resp.Records[0].Period != "2025" || !resp.Records[0].Charge.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected records %+v", resp.Records)
	}
	if len(f.calc.ran) != 1 || f.calc.ran[0] != "P-1" {
		t.Fatalf("expected P-1 to run, got %v", f.calc.ran)
	}
}

func TestCalculateErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", fmt.Errorf("project X: %w", ledger.ErrProjectNotFound), http.StatusNotFound},
		{"configuration", fmt.Errorf("project X: %w", depreciation.ErrConfiguration), http.StatusUnprocessableEntity},
		{"missing start", fmt.Errorf("project X: %w", depreciation.ErrMissingDepreciationStart), http.StatusUnprocessableEntity},
		{"data shape", fmt.Errorf("project X: %w", depreciation.ErrDataShape), http.StatusUnprocessableEntity},
		{"storage", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			f.calc.runErr = tt.err

			rr := f.do(t, http.MethodPost, "/api/projects/X/calculate")
			if rr.Code != tt.expected {
				t.Fatalf("expected status %d, got %d", tt.expected, rr.Code)
			}
			var resp map[string]string
			decodeBody(t, rr, &resp)
			if resp["error"] == "" {
				t.Fatal("expected error message in response")
			}
		})
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.calc.previewed = []depreciation.Record{{
		Period:    datetime.Monthly(2025, 1),
		Base:      decimal.NewFromInt(1200),
		Charge:    decimal.NewFromInt(24),
		Remaining: decimal.NewFromInt(1176),
	}}

	rr := f.do(t, http.MethodGet, "/api/projects/P-1/preview")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp scheduleResponse
	decodeBody(t, rr, &resp)
	if resp.Persisted {
		t.Fatal("preview must not report persisted records")
	}
	if len(resp.Records) != 1 || resp.Records[0].Period != "2025-01" {
		t.Fatalf("unexpected records %+v", resp.Records)
	}
	if len(f.calc.ran) != 0 {
		t.Fatal("preview must not run the calculation")
	}
}

func TestDepreciations(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rr := f.do(t, http.MethodGet, "/api/projects/P-1/depreciations")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp scheduleResponse
	decodeBody(t, rr, &resp)
	if len(resp.Records) != 1 || !resp.Records[0].Remaining.Equal(decimal.NewFromInt(1080)) {
		t.Fatalf("unexpected records %+v", resp.Records)
	}

	if rr := f.do(t, http.MethodGet, "/api/projects/missing/depreciations"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCalculateAll(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.calc.batch = calculation.BatchReport{
		RunID:     "run-1",
		Succeeded: []string{"P-1", "P-3"},
		Failed:    []calculation.ProjectFailure{{ProjectID: "P-2", Error: "no method"}},
	}

	rr := f.do(t, http.MethodPost, "/api/calculate")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp calculation.BatchReport
	decodeBody(t, rr, &resp)
	if resp.RunID != "run-1" || len(resp.Succeeded) != 2 || len(resp.Failed) != 1 || resp.Failed[0].ProjectID != "P-2" {
		t.Fatalf("unexpected batch report %+v", resp)
	}
}

func TestReports(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	rr := f.do(t, http.MethodGet, "/api/reports/P-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var report store.Report
	decodeBody(t, rr, &report)
	if report.ProjectID != "P-1" {
		t.Fatalf("unexpected report %+v", report)
	}

	if rr := f.do(t, http.MethodGet, "/api/reports/missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/reports")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	decodeBody(t, rr, &report)
	if !report.TotalInvestment.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected portfolio report %+v", report)
	}
}

func multipartUpload(t *testing.T, path string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "sheet.xlsx")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write form data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestImportUpload(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, multipartUpload(t, "/api/import/investments", []byte("workbook")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if f.importer.kind != importer.KindInvestments || string(f.importer.body) != "workbook" {
		t.Fatalf("importer received kind %q body %q", f.importer.kind, f.importer.body)
	}
	var result importer.Result
	decodeBody(t, rr, &result)
	if result.Rows != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestImportUploadErrors(t *testing.T) {
	small := DefaultConfig()
	small.MaxUploadSize = "64"
	if err := small.Normalize(); err != nil {
		t.Fatal(err)
	}

	t.Run("unknown kind", func(t *testing.T) {
		f := newFixture(t, DefaultConfig())
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, multipartUpload(t, "/api/import/loans", []byte("x")))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("too large", func(t *testing.T) {
		f := newFixture(t, small)
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, multipartUpload(t, "/api/import/projects", bytes.Repeat([]byte("x"), 1024)))
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected status 413, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t, DefaultConfig())
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		_ = writer.WriteField("note", "no file")
		_ = writer.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/import/projects", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("import failure", func(t *testing.T) {
		f := newFixture(t, DefaultConfig())
		f.importer.err = errors.New("sheet Sheet1 is missing required columns: branch")
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, multipartUpload(t, "/api/import/projects", []byte("x")))
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", rr.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.do(t, http.MethodGet, "/api/version")

	rr := f.do(t, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `capex_http_requests_total{code="200",method="GET",route="/api/version"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", rr.Body.String())
	}

	disabled := DefaultConfig()
	disabled.Metrics = false
	f = newFixture(t, disabled)
	if rr := f.do(t, http.MethodGet, "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 with metrics disabled, got %d", rr.Code)
	}
}
