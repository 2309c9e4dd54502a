package importer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iwvelando/capex-depreciation/internal/metrics"
	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/iwvelando/capex-depreciation/pkg/datetime"
	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type fakeRepository struct {
	ids             []string
	projects        []store.Project
	investments     []store.Investment
	starts          []store.DepreciationStart
	classifications []store.Classification
	saveErr         error
}

func (f *fakeRepository) SaveProjects(_ context.Context, projects []store.Project) error {
	f.projects = append(f.projects, projects...)
	return f.saveErr
}

func (f *fakeRepository) SaveInvestments(_ context.Context, investments []store.Investment) error {
	f.investments = append(f.investments, investments...)
	return f.saveErr
}

func (f *fakeRepository) SaveDepreciationStarts(_ context.Context, starts []store.DepreciationStart) error {
	f.starts = append(f.starts, starts...)
	return f.saveErr
}

func (f *fakeRepository) SaveClassifications(_ context.Context, classifications []store.Classification) error {
	f.classifications = append(f.classifications, classifications...)
	return f.saveErr
}

func (f *fakeRepository) ProjectIDs(context.Context) ([]string, error) {
	return f.ids, nil
}

// workbook builds an xlsx with a single sheet holding rows.
func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for n, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, n+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
		wantErr  bool
	}{
		{"projects", KindProjects, false},
		{" Investments ", KindInvestments, false},
		{"STARTS", KindStarts, false},
		{"classifications", KindClassifications, false},
		{"loans", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestImportProjects(t *testing.T) {
	repo := &fakeRepository{}
	m := metrics.New()
	imp := New(repo, m, zap.NewNop())

	buf := workbook(t, [][]interface{}{
		{"Project_ID", "Branch", "Operations", "Description", "Depreciation_Method"},
		{"P-1", "North", "Mining", "Crusher", 2},
		{"P-2", "South", "Transport", "Trucks", nil},
		{"P-1", "North", "Mining", "Duplicate", 3},
		{"P-3", "East", "Port", "Crane", "abc"},
	})

	result, err := imp.Import(context.Background(), KindProjects, buf)
	require.NoError(t, err)

	assert.Equal(t, KindProjects, result.Kind)
	assert.Equal(t, 3, result.Rows)
	require.Len(t, repo.projects, 3)
	assert.Equal(t, "Crusher", repo.projects[0].Description)
	require.NotNil(t, repo.projects[0].MethodID)
	assert.Equal(t, int64(2), *repo.projects[0].MethodID)
	assert.Nil(t, repo.projects[1].MethodID)
	assert.Nil(t, repo.projects[2].MethodID)
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ImportedRows.WithLabelValues("projects")))
}

func TestImportProjectsMissingColumns(t *testing.T) {
	imp := New(&fakeRepository{}, nil, nil)
	buf := workbook(t, [][]interface{}{
		{"project_id", "branch"},
		{"P-1", "North"},
	})

	_, err := imp.Import(context.Background(), KindProjects, buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operations, description, depreciation_method")
}

func TestImportInvestments(t *testing.T) {
	repo := &fakeRepository{ids: []string{"P-1", "P-2"}}
	imp := New(repo, nil, nil)

	buf := workbook(t, [][]interface{}{
		{"project_id", "2026", "2025", "notes"},
		{"P-1", 500, 1000.5, "first"},
		{"P-2", nil, -200},
		{"P-9", 100, 100},
	})

	result, err := imp.Import(context.Background(), KindInvestments, buf)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, []string{"P-9"}, result.Skipped)
	require.Len(t, repo.investments, 3)
	assert.Equal(t, 2025, repo.investments[0].Year)
	assert.True(t, repo.investments[0].Amount.Equal(d("1000.5")))
	assert.Equal(t, 2026, repo.investments[1].Year)
	assert.True(t, repo.investments[1].Amount.Equal(d("500")))
	assert.Equal(t, "P-2", repo.investments[2].ProjectID)
	assert.True(t, repo.investments[2].Amount.Equal(d("-200")))
}

func TestImportInvestmentsErrors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]interface{}
	}{
		{"no year columns", [][]interface{}{{"project_id", "amount"}, {"P-1", 10}}},
		{"no project column", [][]interface{}{{"id", "2025"}, {"P-1", 10}}},
		{"bad amount", [][]interface{}{{"project_id", "2025"}, {"P-1", "ten"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := New(&fakeRepository{ids: []string{"P-1"}}, nil, nil)
			_, err := imp.Import(context.Background(), KindInvestments, workbook(t, tt.rows))
			assert.Error(t, err)
		})
	}
}

func TestImportStarts(t *testing.T) {
	repo := &fakeRepository{ids: []string{"A", "B", "C", "D"}}
	imp := New(repo, nil, nil)

	buf := workbook(t, [][]interface{}{
		{"project_id", "start_year", "start_month"},
		{"A", "2025;2027", "3;9"},
		{"B", "2025;2026", "6"},
		{"C", "2025;2026;2027", "4;5"},
		{"D", 2030},
		{"Z", 2025, 1},
	})

	result, err := imp.Import(context.Background(), KindStarts, buf)
	require.NoError(t, err)

	expected := []store.DepreciationStart{
		{ProjectID: "A", Year: 2025, Month: 3},
		{ProjectID: "A", Year: 2027, Month: 9},
		{ProjectID: "B", Year: 2025, Month: 6},
		{ProjectID: "B", Year: 2026, Month: 6},
		{ProjectID: "C", Year: 2025, Month: 1},
		{ProjectID: "C", Year: 2026, Month: 1},
		{ProjectID: "C", Year: 2027, Month: 1},
		{ProjectID: "D", Year: 2030, Month: 1},
	}
	assert.Equal(t, expected, repo.starts)
	assert.Equal(t, len(expected), result.Rows)
	assert.Equal(t, []string{"Z"}, result.Skipped)
	assert.Len(t, result.Warnings, 2)
}

func TestImportStartsInvalidValues(t *testing.T) {
	repo := &fakeRepository{ids: []string{"A"}}
	imp := New(repo, nil, nil)

	buf := workbook(t, [][]interface{}{
		{"project_id", "start_year", "start_month"},
		{"A", "2025;next", "13;2"},
	})

	result, err := imp.Import(context.Background(), KindStarts, buf)
	require.NoError(t, err)
	assert.Empty(t, repo.starts)
	assert.Equal(t, 0, result.Rows)
	assert.Len(t, result.Warnings, 2)
}

func TestImportClassifications(t *testing.T) {
	repo := &fakeRepository{ids: []string{"P-1"}}
	imp := New(repo, nil, nil)

	buf := workbook(t, [][]interface{}{
		{"project_id", "importance", "type"},
		{"P-1", 2, 5},
		{"P-2", 1, 1},
	})

	result, err := imp.Import(context.Background(), KindClassifications, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, []store.Classification{{ProjectID: "P-1", Importance: 2, Type: 5}}, repo.classifications)
	assert.Equal(t, []string{"P-2"}, result.Skipped)
}

func TestImportSaveError(t *testing.T) {
	repo := &fakeRepository{saveErr: errors.New("disk full")}
	imp := New(repo, nil, nil)

	buf := workbook(t, [][]interface{}{
		{"project_id", "branch", "operations", "description", "depreciation_method"},
		{"P-1", "North", "Mining", "Crusher", 1},
	})

	_, err := imp.Import(context.Background(), KindProjects, buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestImportRejectsNonWorkbook(t *testing.T) {
	imp := New(&fakeRepository{}, nil, nil)
	_, err := imp.Import(context.Background(), KindProjects, strings.NewReader("project_id,branch\n"))
	assert.Error(t, err)
}

func TestExportSchedules(t *testing.T) {
	schedules := []store.Schedule{
		{
			ProjectID: "P-1",
			Kind:      depreciation.KindPercentage,
			Records: []depreciation.Record{
				{Period: datetime.Monthly(2025, 1), Base: d("1200"), Charge: d("24"), Remaining: d("1176")},
			},
		},
		{
			ProjectID: "P-2",
			Kind:      depreciation.KindYears,
			Records: []depreciation.Record{
				{Period: datetime.Yearly(2025), Base: d("1200"), Charge: d("120"), Remaining: d("1080")},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportSchedules(&buf, schedules))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"project_id", "method", "year", "month", "base", "charge", "remaining"}, rows[0])
	assert.Equal(t, []string{"P-1", "percentage", "2025", "1", "1200", "24", "1176"}, rows[1])
	assert.Equal(t, "P-2", rows[2][0])
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, "1080", rows[2][6])
}
