package importer

import (
	"fmt"
	"io"

	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/xuri/excelize/v2"
)

// ExportSheet is the name of the sheet written by ExportSchedules.
const ExportSheet = "depreciations"

var exportHeader = []interface{}{"project_id", "method", "year", "month", "base", "charge", "remaining"}

// ExportSchedules writes schedules to an xlsx workbook, one row per record.
// Yearly records leave the month cell empty.
func ExportSchedules(w io.Writer, schedules []store.Schedule) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("name export sheet: %w", err)
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	row := 2
	for _, schedule := range schedules {
		for _, r := range schedule.Records {
			var month interface{}
			if !r.Period.IsYearly() {
				month = r.Period.Month
			}
			values := []interface{}{
				schedule.ProjectID,
				string(schedule.Kind),
				r.Period.Year,
				month,
				r.Base.InexactFloat64(),
				r.Charge.InexactFloat64(),
				r.Remaining.InexactFloat64(),
			}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(ExportSheet, cell, &values); err != nil {
				return fmt.Errorf("write export row %d: %w", row, err)
			}
			row++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
