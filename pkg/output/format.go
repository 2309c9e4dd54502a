// Package output provides utilities for formatting and displaying
// depreciation schedules and reports.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/iwvelando/capex-depreciation/internal/calculation"
	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/iwvelando/capex-depreciation/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

// PrettySchedule writes a human-readable table of one project's schedule.
func PrettySchedule(w io.Writer, schedule store.Schedule) {
	p := printer()
	_, _ = p.Fprintf(w, "--- Depreciation for project %s (%s, %d periods) ---\n",
		schedule.ProjectID, schedule.Kind, len(schedule.Records))
	_, _ = fmt.Fprintf(w, "Period  | Base | Charge | Remaining\n")
	_, _ = fmt.Fprintf(w, "______  | ____ | ______ | _________\n")
	for _, r := range schedule.Records {
		_, _ = fmt.Fprintf(w, "%s | %s | %s | %s\n", r.Period,
			format.Currency(r.Base), format.Currency(r.Charge), format.Currency(r.Remaining))
	}
}

// CsvSchedules writes schedules in comma-separated value format, one row per
// record.
func CsvSchedules(w io.Writer, schedules []store.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"project_id", "method", "period", "base", "charge", "remaining"}); err != nil {
		return err
	}
	for _, schedule := range schedules {
		for _, r := range schedule.Records {
			row := []string{
				schedule.ProjectID,
				string(schedule.Kind),
				r.Period.String(),
				format.Plain(r.Base),
				format.Plain(r.Charge),
				format.Plain(r.Remaining),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// PrettyReport writes a yearly investment versus depreciation table.
func PrettyReport(w io.Writer, report store.Report) {
	title := "all projects"
	if report.ProjectID != "" {
		title = "project " + report.ProjectID
	}
	_, _ = fmt.Fprintf(w, "--- Report for %s ---\n", title)
	_, _ = fmt.Fprintf(w, "Year | Investment | Depreciation | Remaining\n")
	_, _ = fmt.Fprintf(w, "____ | __________ | ____________ | _________\n")
	for _, y := range report.Years {
		_, _ = fmt.Fprintf(w, "%d | %s | %s | %s\n", y.Year,
			format.Currency(y.Investment), format.Currency(y.Depreciation), format.Currency(y.Remaining))
	}
	_, _ = fmt.Fprintf(w, "Total | %s | %s |\n",
		format.Currency(report.TotalInvestment), format.Currency(report.TotalDepreciation))
}

// CsvReport writes a report in comma-separated value format.
func CsvReport(w io.Writer, report store.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"year", "investment", "depreciation", "remaining"}); err != nil {
		return err
	}
	for _, y := range report.Years {
		row := []string{
			strconv.Itoa(y.Year),
			format.Plain(y.Investment),
			format.Plain(y.Depreciation),
			format.Plain(y.Remaining),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PrettyBatch writes the outcome of a batch run.
func PrettyBatch(w io.Writer, report calculation.BatchReport) {
	p := printer()
	_, _ = p.Fprintf(w, "--- Batch %s: %d succeeded, %d failed in %s ---\n",
		report.RunID, len(report.Succeeded), len(report.Failed), report.Finished.Sub(report.Started).String())
	for _, f := range report.Failed {
		_, _ = fmt.Fprintf(w, "%s | %s\n", f.ProjectID, f.Error)
	}
}

// PrettyProjects writes a project listing.
func PrettyProjects(w io.Writer, projects []store.Project) {
	p := printer()
	_, _ = p.Fprintf(w, "--- %d projects ---\n", len(projects))
	_, _ = fmt.Fprintf(w, "ID | Branch | Operations | Method | Description\n")
	for _, project := range projects {
		method := "-"
		if project.MethodID != nil {
			method = strconv.FormatInt(*project.MethodID, 10)
		}
		_, _ = fmt.Fprintf(w, "%s | %s | %s | %s | %s\n",
			project.ID, project.Branch, project.Operations, method, project.Description)
	}
}
