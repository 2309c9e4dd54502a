// Package calculation orchestrates depreciation runs: it resolves a
// project's method, builds its timeline, calculates the schedule and
// persists the result.
package calculation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/capex-depreciation/internal/ledger"
	"github.com/iwvelando/capex-depreciation/internal/metrics"
	"github.com/iwvelando/capex-depreciation/pkg/constants"
	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tune a Service.
type Options struct {
	// HorizonYear is the last year a schedule covers.
	HorizonYear int
	// Workers bounds how many projects RunAll processes concurrently.
	Workers int
	// Metrics is optional.
	Metrics *metrics.Collector
}

// Service runs depreciation calculations against a ledger.
type Service struct {
	ledger     ledger.Ledger
	calculator *depreciation.Calculator
	logger     *zap.Logger
	metrics    *metrics.Collector
	horizon    int
	workers    int
}

// NewService creates a new calculation service.
func NewService(l ledger.Ledger, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HorizonYear <= 0 {
		opts.HorizonYear = constants.DefaultHorizonYear
	}
	if opts.Workers <= 0 {
		opts.Workers = constants.DefaultWorkers
	}
	return &Service{
		ledger:     l,
		calculator: depreciation.NewCalculator(logger),
		logger:     logger,
		metrics:    opts.Metrics,
		horizon:    opts.HorizonYear,
		workers:    opts.Workers,
	}
}

// ResolveMethod loads and resolves a project's depreciation method.
func (s *Service) ResolveMethod(ctx context.Context, projectID string) (depreciation.Method, error) {
	params, err := s.ledger.MethodParameters(ctx, projectID)
	if err != nil {
		return depreciation.Method{}, fmt.Errorf("project %s: %w", projectID, err)
	}

	method, err := depreciation.Resolve(params)
	if err != nil {
		return depreciation.Method{}, fmt.Errorf("project %s: %w", projectID, err)
	}

	if params.Ambiguous() {
		s.logger.Warn(fmt.Sprintf("project %s method %d sets both rate and duration; using rate %s%%",
			projectID, params.MethodID, method.Rate),
			zap.String("op", "calculation.ResolveMethod"),
		)
	}
	return method, nil
}

// Preview calculates a project's schedule without persisting it.
func (s *Service) Preview(ctx context.Context, projectID string) (depreciation.Method, []depreciation.Record, error) {
	method, err := s.ResolveMethod(ctx, projectID)
	if err != nil {
		return depreciation.Method{}, nil, err
	}

	events, err := s.ledger.InvestmentEvents(ctx, projectID)
	if err != nil {
		return method, nil, fmt.Errorf("project %s: load investments: %w", projectID, err)
	}

	if starts := countStarts(events); starts > 1 {
		s.logger.Warn(fmt.Sprintf("project %s has %d depreciation starts; only the earliest is used", projectID, starts),
			zap.String("op", "calculation.Preview"),
		)
	}

	timeline, err := depreciation.BuildTimeline(events, s.horizon, method.Kind.Granularity())
	if err != nil {
		return method, nil, fmt.Errorf("project %s: %w", projectID, err)
	}

	records, err := s.calculator.Calculate(timeline, method)
	if err != nil {
		return method, nil, fmt.Errorf("project %s: %w", projectID, err)
	}
	return method, records, nil
}

func countStarts(events []depreciation.InvestmentEvent) int {
	n := 0
	for _, e := range events {
		if e.Start != nil {
			n++
		}
	}
	return n
}

// Run calculates and persists one project's depreciation, replacing any
// previously stored records. It returns the method kind that was applied.
func (s *Service) Run(ctx context.Context, projectID string) (depreciation.Kind, error) {
	start := time.Now()

	method, records, err := s.Preview(ctx, projectID)
	if err == nil {
		err = s.ledger.ReplaceDepreciationRecords(ctx, projectID, method.Kind, records)
		if err != nil {
			err = fmt.Errorf("project %s: persist depreciation: %w", projectID, err)
		}
	}
	s.metrics.ObserveCalculation(string(method.Kind), err, time.Since(start), len(records))
	if err != nil {
		return "", err
	}

	s.logger.Info(fmt.Sprintf("calculated %s depreciation for project %s", method, projectID),
		zap.String("op", "calculation.Run"),
		zap.Int("records", len(records)),
	)
	return method.Kind, nil
}

// ProjectFailure is a project that failed inside a batch run.
type ProjectFailure struct {
	ProjectID string `json:"projectId"`
	Error     string `json:"error"`
	Err       error  `json:"-"`
}

// BatchReport summarizes a RunAll invocation.
type BatchReport struct {
	RunID     string           `json:"runId"`
	Succeeded []string         `json:"succeeded"`
	Failed    []ProjectFailure `json:"failed"`
	Started   time.Time        `json:"started"`
	Finished  time.Time        `json:"finished"`
}

// RunAll runs every project. A failing project is logged and reported but
// does not stop the batch; only listing the projects or cancellation of ctx
// returns an error.
func (s *Service) RunAll(ctx context.Context) (BatchReport, error) {
	report := BatchReport{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}
	logger := s.logger.With(zap.String("run", report.RunID))

	ids, err := s.ledger.ProjectIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list projects: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := s.Run(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Error(fmt.Sprintf("project %s failed: %v", id, err),
					zap.String("op", "calculation.RunAll"),
				)
				report.Failed = append(report.Failed, ProjectFailure{ProjectID: id, Error: err.Error(), Err: err})
				return nil
			}
			report.Succeeded = append(report.Succeeded, id)
			return nil
		})
	}

	err = g.Wait()
	report.Finished = time.Now().UTC()

	sort.Strings(report.Succeeded)
	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].ProjectID < report.Failed[j].ProjectID
	})
	s.metrics.ObserveBatch(len(report.Failed))

	if err != nil {
		return report, fmt.Errorf("batch %s interrupted: %w", report.RunID, err)
	}

	logger.Info(fmt.Sprintf("batch finished: %d succeeded, %d failed", len(report.Succeeded), len(report.Failed)),
		zap.String("op", "calculation.RunAll"),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report, nil
}
