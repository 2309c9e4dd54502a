// Package importer loads projects, investments, depreciation starts and
// classifications from xlsx workbooks and exports calculated schedules.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/iwvelando/capex-depreciation/internal/metrics"
	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/iwvelando/capex-depreciation/pkg/validation"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Kind names the content of an imported sheet.
type Kind string

const (
	KindProjects        Kind = "projects"
	KindInvestments     Kind = "investments"
	KindStarts          Kind = "starts"
	KindClassifications Kind = "classifications"
)

// Kinds lists every importable sheet kind.
var Kinds = []Kind{KindProjects, KindInvestments, KindStarts, KindClassifications}

// ParseKind validates a sheet kind name.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown import kind %q", value)
}

// Repository is where imported rows are saved.
type Repository interface {
	SaveProjects(ctx context.Context, projects []store.Project) error
	SaveInvestments(ctx context.Context, investments []store.Investment) error
	SaveDepreciationStarts(ctx context.Context, starts []store.DepreciationStart) error
	SaveClassifications(ctx context.Context, classifications []store.Classification) error
	ProjectIDs(ctx context.Context) ([]string, error)
}

// Result summarizes one import.
type Result struct {
	Kind     Kind     `json:"kind"`
	Rows     int      `json:"rows"`
	Skipped  []string `json:"skipped,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Importer reads workbooks into a Repository.
type Importer struct {
	repo    Repository
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates an Importer. m may be nil.
func New(repo Repository, m *metrics.Collector, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{repo: repo, metrics: m, logger: logger}
}

// ImportFile imports the first sheet of the workbook at path.
func (i *Importer) ImportFile(ctx context.Context, kind Kind, path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{Kind: kind}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return i.Import(ctx, kind, file)
}

// Import imports the first sheet of the workbook read from r.
func (i *Importer) Import(ctx context.Context, kind Kind, r io.Reader) (Result, error) {
	sheet, rows, err := readFirstSheet(r)
	if err != nil {
		return Result{Kind: kind}, err
	}
	if len(rows) == 0 {
		return Result{Kind: kind}, fmt.Errorf("sheet %s is empty", sheet)
	}
	t := newTable(sheet, rows)

	var result Result
	switch kind {
	case KindProjects:
		result, err = i.importProjects(ctx, t)
	case KindInvestments:
		result, err = i.importInvestments(ctx, t)
	case KindStarts:
		result, err = i.importStarts(ctx, t)
	case KindClassifications:
		result, err = i.importClassifications(ctx, t)
	default:
		err = fmt.Errorf("unknown import kind %q", kind)
	}
	result.Kind = kind
	if err != nil {
		return result, err
	}

	for _, w := range result.Warnings {
		i.logger.Warn(w, zap.String("op", "importer.Import"), zap.String("kind", string(kind)))
	}
	i.metrics.ObserveImport(string(kind), result.Rows)
	i.logger.Info(fmt.Sprintf("imported %d %s rows from sheet %s", result.Rows, kind, sheet),
		zap.String("op", "importer.Import"),
	)
	return result, nil
}

func readFirstSheet(r io.Reader) (string, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", nil, fmt.Errorf("read workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return sheets[0], nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return sheets[0], rows, nil
}

// table is a sheet with a normalized header row.
type table struct {
	sheet   string
	header  []string
	columns map[string]int
	rows    [][]string
}

func newTable(sheet string, rows [][]string) *table {
	t := &table{sheet: sheet, columns: make(map[string]int)}
	for idx, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		t.header = append(t.header, name)
		if _, dup := t.columns[name]; !dup {
			t.columns[name] = idx
		}
	}
	t.rows = rows[1:]
	return t
}

func (t *table) require(columns ...string) error {
	return validation.ValidateColumns(t.sheet, t.header, columns)
}

func (t *table) has(column string) bool {
	_, ok := t.columns[column]
	return ok
}

// cell returns the trimmed value of column in row; GetRows drops trailing
// empty cells so short rows read as empty.
func (t *table) cell(row []string, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (t *table) blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (i *Importer) importProjects(ctx context.Context, t *table) (Result, error) {
	if err := t.require("project_id", "branch", "operations", "description", "depreciation_method"); err != nil {
		return Result{}, err
	}

	var (
		result   Result
		projects []store.Project
	)
	seen := make(map[string]bool)
	for n, row := range t.rows {
		if t.blank(row) {
			continue
		}
		id := t.cell(row, "project_id")
		if id == "" {
			return result, fmt.Errorf("sheet %s row %d: missing project_id", t.sheet, n+2)
		}
		if seen[id] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("duplicate project %s on row %d ignored", id, n+2))
			continue
		}
		seen[id] = true

		p := store.Project{
			ID:          id,
			Branch:      t.cell(row, "branch"),
			Operations:  t.cell(row, "operations"),
			Description: t.cell(row, "description"),
		}
		if raw := t.cell(row, "depreciation_method"); raw != "" {
			methodID, err := parseInt(raw)
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("project %s: depreciation_method %q is not a number and was left empty", id, raw))
			} else {
				v := int64(methodID)
				p.MethodID = &v
			}
		}
		projects = append(projects, p)
	}

	if err := i.repo.SaveProjects(ctx, projects); err != nil {
		return result, fmt.Errorf("save projects: %w", err)
	}
	result.Rows = len(projects)
	return result, nil
}

func (i *Importer) importClassifications(ctx context.Context, t *table) (Result, error) {
	if err := t.require("project_id", "importance", "type"); err != nil {
		return Result{}, err
	}
	known, err := i.knownProjects(ctx)
	if err != nil {
		return Result{}, err
	}

	var (
		result          Result
		classifications []store.Classification
	)
	seen := make(map[string]bool)
	for n, row := range t.rows {
		if t.blank(row) {
			continue
		}
		id := t.cell(row, "project_id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if !known[id] {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		importance, err := parseInt(t.cell(row, "importance"))
		if err != nil {
			return result, fmt.Errorf("sheet %s row %d: importance: %w", t.sheet, n+2, err)
		}
		kind, err := parseInt(t.cell(row, "type"))
		if err != nil {
			return result, fmt.Errorf("sheet %s row %d: type: %w", t.sheet, n+2, err)
		}
		classifications = append(classifications, store.Classification{ProjectID: id, Importance: importance, Type: kind})
	}
	result.Warnings = append(result.Warnings, skippedWarning(result.Skipped)...)

	if err := i.repo.SaveClassifications(ctx, classifications); err != nil {
		return result, fmt.Errorf("save classifications: %w", err)
	}
	result.Rows = len(classifications)
	return result, nil
}

// importInvestments unpivots a sheet with one column per year. Every header
// that is a four digit year is a year column; empty cells are skipped.
func (i *Importer) importInvestments(ctx context.Context, t *table) (Result, error) {
	if err := t.require("project_id"); err != nil {
		return Result{}, err
	}
	var years []int
	for _, h := range t.header {
		if year, err := strconv.Atoi(h); err == nil && len(h) == 4 {
			years = append(years, year)
		}
	}
	if len(years) == 0 {
		return Result{}, fmt.Errorf("sheet %s has no year columns", t.sheet)
	}
	sort.Ints(years)

	known, err := i.knownProjects(ctx)
	if err != nil {
		return Result{}, err
	}

	var (
		result      Result
		investments []store.Investment
	)
	seen := make(map[string]bool)
	for n, row := range t.rows {
		if t.blank(row) {
			continue
		}
		id := t.cell(row, "project_id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if !known[id] {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		for _, year := range years {
			raw := t.cell(row, strconv.Itoa(year))
			if raw == "" {
				continue
			}
			amount, err := parseAmount(raw)
			if err != nil {
				return result, fmt.Errorf("sheet %s row %d year %d: %w", t.sheet, n+2, year, err)
			}
			investments = append(investments, store.Investment{ProjectID: id, Year: year, Amount: amount})
		}
	}
	result.Warnings = append(result.Warnings, skippedWarning(result.Skipped)...)

	if err := i.repo.SaveInvestments(ctx, investments); err != nil {
		return result, fmt.Errorf("save investments: %w", err)
	}
	result.Rows = len(investments)
	return result, nil
}

// importStarts reads semicolon separated start years and months. A missing
// or mismatched month list defaults every month to 1; a single month applies
// to every year.
func (i *Importer) importStarts(ctx context.Context, t *table) (Result, error) {
	if err := t.require("project_id", "start_year"); err != nil {
		return Result{}, err
	}
	known, err := i.knownProjects(ctx)
	if err != nil {
		return Result{}, err
	}

	var (
		result Result
		starts []store.DepreciationStart
	)
	skipped := make(map[string]bool)
	for _, row := range t.rows {
		if t.blank(row) {
			continue
		}
		id := t.cell(row, "project_id")
		if id == "" {
			continue
		}
		if !known[id] {
			if !skipped[id] {
				skipped[id] = true
				result.Skipped = append(result.Skipped, id)
			}
			continue
		}

		years := splitList(t.cell(row, "start_year"))
		months := splitList(t.cell(row, "start_month"))
		switch {
		case len(months) == len(years):
		case len(months) == 1:
			single := months[0]
			months = make([]string, len(years))
			for k := range months {
				months[k] = single
			}
		default:
			if len(months) > 0 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("project %s: %d start years but %d start months, months default to 1", id, len(years), len(months)))
			}
			months = make([]string, len(years))
			for k := range months {
				months[k] = "1"
			}
		}

		for k, rawYear := range years {
			year, yerr := strconv.Atoi(rawYear)
			month, merr := strconv.Atoi(months[k])
			if yerr != nil || merr != nil || year <= 0 || month < 1 || month > 12 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("project %s: invalid start %s/%s ignored", id, rawYear, months[k]))
				continue
			}
			starts = append(starts, store.DepreciationStart{ProjectID: id, Year: year, Month: month})
		}
	}
	result.Warnings = append(result.Warnings, skippedWarning(result.Skipped)...)

	if len(starts) > 0 {
		if err := i.repo.SaveDepreciationStarts(ctx, starts); err != nil {
			return result, fmt.Errorf("save depreciation starts: %w", err)
		}
	}
	result.Rows = len(starts)
	return result, nil
}

func (i *Importer) knownProjects(ctx context.Context) (map[string]bool, error) {
	ids, err := i.repo.ProjectIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return known, nil
}

func skippedWarning(skipped []string) []string {
	if len(skipped) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("projects missing from the projects table were skipped: %s", strings.Join(skipped, ", "))}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseInt accepts integral values that a spreadsheet may render as "3.0".
func parseInt(value string) (int, error) {
	if n, err := strconv.Atoi(value); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%q is not an integer", value)
	}
	return int(d.IntPart()), nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(value, ",", "")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
