package store

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// YearSummary compares a year's investment with its depreciation.
type YearSummary struct {
	Year         int             `json:"year"`
	Investment   decimal.Decimal `json:"investment"`
	Depreciation decimal.Decimal `json:"depreciation"`
	Remaining    decimal.Decimal `json:"remaining"`
}

// Report is a yearly investment versus depreciation summary. ProjectID is
// empty for the all-projects report.
type Report struct {
	ProjectID         string          `json:"projectId,omitempty"`
	Years             []YearSummary   `json:"years"`
	TotalInvestment   decimal.Decimal `json:"totalInvestment"`
	TotalDepreciation decimal.Decimal `json:"totalDepreciation"`
}

// ProjectReport summarizes one project by year.
func (s *Store) ProjectReport(ctx context.Context, projectID string) (Report, error) {
	if _, err := s.Project(ctx, projectID); err != nil {
		return Report{}, err
	}
	investments, err := s.Investments(ctx, projectID)
	if err != nil {
		return Report{}, err
	}
	schedule, err := s.DepreciationSchedule(ctx, projectID)
	if err != nil {
		return Report{}, err
	}

	report := summarize(investments, []Schedule{schedule})
	report.ProjectID = projectID
	return report, nil
}

// PortfolioReport summarizes all projects by year.
func (s *Store) PortfolioReport(ctx context.Context) (Report, error) {
	ids, err := s.ProjectIDs(ctx)
	if err != nil {
		return Report{}, err
	}

	var (
		investments []Investment
		schedules   []Schedule
	)
	for _, id := range ids {
		inv, err := s.Investments(ctx, id)
		if err != nil {
			return Report{}, err
		}
		investments = append(investments, inv...)

		schedule, err := s.DepreciationSchedule(ctx, id)
		if err != nil {
			return Report{}, err
		}
		schedules = append(schedules, schedule)
	}
	return summarize(investments, schedules), nil
}

// summarize totals investment and depreciation per calendar year. A year's
// remaining value is the sum of each schedule's last record in that year.
func summarize(investments []Investment, schedules []Schedule) Report {
	years := make(map[int]*YearSummary)
	get := func(year int) *YearSummary {
		if y, ok := years[year]; ok {
			return y
		}
		y := &YearSummary{Year: year}
		years[year] = y
		return y
	}

	var report Report
	for _, inv := range investments {
		y := get(inv.Year)
		y.Investment = y.Investment.Add(inv.Amount)
		report.TotalInvestment = report.TotalInvestment.Add(inv.Amount)
	}

	for _, schedule := range schedules {
		yearEnd := make(map[int]decimal.Decimal)
		for _, r := range schedule.Records {
			y := get(r.Period.Year)
			y.Depreciation = y.Depreciation.Add(r.Charge)
			report.TotalDepreciation = report.TotalDepreciation.Add(r.Charge)
			yearEnd[r.Period.Year] = r.Remaining
		}
		for year, remaining := range yearEnd {
			y := get(year)
			y.Remaining = y.Remaining.Add(remaining)
		}
	}

	for _, y := range years {
		report.Years = append(report.Years, *y)
	}
	sort.Slice(report.Years, func(i, j int) bool {
		return report.Years[i].Year < report.Years[j].Year
	})
	return report
}
