// Package server exposes depreciation runs, projects and reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/iwvelando/capex-depreciation/internal/calculation"
	"github.com/iwvelando/capex-depreciation/internal/importer"
	"github.com/iwvelando/capex-depreciation/internal/ledger"
	"github.com/iwvelando/capex-depreciation/internal/metrics"
	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Calculator runs depreciation for projects.
type Calculator interface {
	Run(ctx context.Context, projectID string) (depreciation.Kind, error)
	Preview(ctx context.Context, projectID string) (depreciation.Method, []depreciation.Record, error)
	RunAll(ctx context.Context) (calculation.BatchReport, error)
}

// Repository reads projects, stored schedules and reports.
type Repository interface {
	SearchProjects(ctx context.Context, filter store.ProjectFilter) ([]store.Project, error)
	Project(ctx context.Context, id string) (store.Project, error)
	DepreciationSchedule(ctx context.Context, projectID string) (store.Schedule, error)
	ProjectReport(ctx context.Context, projectID string) (store.Report, error)
	PortfolioReport(ctx context.Context) (store.Report, error)
	HealthCheck(ctx context.Context) error
}

// Importer loads uploaded workbooks.
type Importer interface {
	Import(ctx context.Context, kind importer.Kind, r io.Reader) (importer.Result, error)
}

// Dependencies are the collaborators the handler serves. Metrics may be nil.
type Dependencies struct {
	Calculator Calculator
	Repository Repository
	Importer   Importer
	Metrics    *metrics.Collector
}

type handler struct {
	logger        *zap.Logger
	deps          Dependencies
	maxUploadSize int64
	version       string
}

// NewHandler constructs the HTTP handler that serves the depreciation API.
func NewHandler(logger *zap.Logger, deps Dependencies, cfg Config, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{logger: logger, deps: deps, maxUploadSize: cfg.UploadSizeBytes(), version: trimmedVersion}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(deps.Metrics.Middleware)

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", h.handleVersion)
		r.Get("/projects", h.handleListProjects)
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetProject)
			r.Post("/calculate", h.handleCalculate)
			r.Get("/preview", h.handlePreview)
			r.Get("/depreciations", h.handleDepreciations)
		})
		r.Post("/calculate", h.handleCalculateAll)
		r.Get("/reports", h.handlePortfolioReport)
		r.Get("/reports/{id}", h.handleProjectReport)
		r.Post("/import/{kind}", h.handleImport)
	})

	if cfg.Metrics && deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	return r
}

type recordResponse struct {
	Period    string          `json:"period"`
	Base      decimal.Decimal `json:"base"`
	Charge    decimal.Decimal `json:"charge"`
	Remaining decimal.Decimal `json:"remaining"`
}

type scheduleResponse struct {
	ProjectID string           `json:"projectId"`
	Method    string           `json:"method"`
	Persisted bool             `json:"persisted"`
	Records   []recordResponse `json:"records"`
	Duration  string           `json:"duration,omitempty"`
}

func buildRecords(records []depreciation.Record) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, recordResponse{
			Period:    r.Period.String(),
			Base:      r.Base,
			Charge:    r.Charge,
			Remaining: r.Remaining,
		})
	}
	return out
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Repository.HealthCheck(r.Context()); err != nil {
		h.respondErrorWithOp(w, http.StatusServiceUnavailable, err.Error(), "server.handleHealth")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	filter := store.ProjectFilter{
		Query:  r.URL.Query().Get("q"),
		Branch: r.URL.Query().Get("branch"),
	}
	projects, err := h.deps.Repository.SearchProjects(r.Context(), filter)
	if err != nil {
		h.respondFailure(w, err, "server.handleListProjects")
		return
	}
	if projects == nil {
		projects = []store.Project{}
	}
	h.writeJSON(w, http.StatusOK, projects)
}

func (h *handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.deps.Repository.Project(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondFailure(w, err, "server.handleGetProject")
		return
	}
	h.writeJSON(w, http.StatusOK, project)
}

func (h *handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	kind, err := h.deps.Calculator.Run(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err, "server.handleCalculate")
		return
	}
	schedule, err := h.deps.Repository.DepreciationSchedule(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err, "server.handleCalculate")
		return
	}

	h.writeJSON(w, http.StatusOK, scheduleResponse{
		ProjectID: id,
		Method:    string(kind),
		Persisted: true,
		Records:   buildRecords(schedule.Records),
		Duration:  time.Since(start).String(),
	})
}

func (h *handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	method, records, err := h.deps.Calculator.Preview(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err, "server.handlePreview")
		return
	}

	h.writeJSON(w, http.StatusOK, scheduleResponse{
		ProjectID: id,
		Method:    method.String(),
		Records:   buildRecords(records),
		Duration:  time.Since(start).String(),
	})
}

func (h *handler) handleDepreciations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.deps.Repository.Project(r.Context(), id); err != nil {
		h.respondFailure(w, err, "server.handleDepreciations")
		return
	}
	schedule, err := h.deps.Repository.DepreciationSchedule(r.Context(), id)
	if err != nil {
		h.respondFailure(w, err, "server.handleDepreciations")
		return
	}

	h.writeJSON(w, http.StatusOK, scheduleResponse{
		ProjectID: id,
		Method:    string(schedule.Kind),
		Persisted: true,
		Records:   buildRecords(schedule.Records),
	})
}

func (h *handler) handleCalculateAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Calculator.RunAll(r.Context())
	if err != nil {
		h.respondFailure(w, err, "server.handleCalculateAll")
		return
	}
	if report.Succeeded == nil {
		report.Succeeded = []string{}
	}
	if report.Failed == nil {
		report.Failed = []calculation.ProjectFailure{}
	}

	h.logger.Info("batch calculated",
		zap.String("op", "server.handleCalculateAll"),
		zap.String("run", report.RunID),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handleProjectReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Repository.ProjectReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondFailure(w, err, "server.handleProjectReport")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handlePortfolioReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Repository.PortfolioReport(r.Context())
	if err != nil {
		h.respondFailure(w, err, "server.handlePortfolioReport")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handleImport(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleImport"

	kind, err := importer.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.respondErrorWithOp(w, http.StatusNotFound, err.Error(), op)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to parse upload: %v", err), op)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, "missing workbook file", op)
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()

	result, err := h.deps.Importer.Import(r.Context(), kind, file)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusUnprocessableEntity, err.Error(), op)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, depreciation.ErrConfiguration),
		errors.Is(err, depreciation.ErrMissingDepreciationStart),
		errors.Is(err, depreciation.ErrDataShape):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondFailure(w http.ResponseWriter, err error, op string) {
	h.respondErrorWithOp(w, statusFor(err), err.Error(), op)
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("error", msg),
		)
	} else {
		h.logger.Debug("request rejected",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("error", msg),
		)
	}

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.String("op", "server.writeJSON"), zap.Error(err))
	}
}

// ListenAndServe serves handler on cfg.Address until ctx is cancelled, then
// shuts down gracefully.
func ListenAndServe(ctx context.Context, cfg Config, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("listening on %s", cfg.Address), zap.String("op", "server.ListenAndServe"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped", zap.String("op", "server.ListenAndServe"))
	return nil
}
