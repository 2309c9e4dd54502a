package validation

import (
	"fmt"
	"strings"

	"github.com/iwvelando/capex-depreciation/pkg/constants"
)

// ValidateHorizon warns when schedules would end before the current year.
func ValidateHorizon(horizonYear, currentYear int) string {
	if horizonYear < currentYear {
		return fmt.Sprintf("Horizon year %d is before the current year %d - schedules end in the past",
			horizonYear, currentYear)
	}
	return ""
}

// ValidateWorkers warns about worker counts the driver cannot benefit from.
func ValidateWorkers(workers int, driver string) string {
	if workers > 1 && driver == constants.DriverSQLite {
		return fmt.Sprintf("%d workers configured with %s - writes are serialized on a single connection",
			workers, driver)
	}
	return ""
}

// ValidateColumns checks that a sheet header contains every required column.
// Matching ignores case and surrounding whitespace.
func ValidateColumns(sheet string, header, required []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}

	var missing []string
	for _, r := range required {
		if !present[strings.ToLower(r)] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("sheet %s is missing required columns: %s", sheet, strings.Join(missing, ", "))
	}
	return nil
}

// ConfigValidator checks runtime settings that are legal but suspicious.
type ConfigValidator struct {
	HorizonYear int
	Workers     int
	Driver      string
	CurrentYear int
}

// ValidateAll validates the entire configuration and returns warnings
func (cv *ConfigValidator) ValidateAll() []string {
	var warnings []string

	if w := ValidateHorizon(cv.HorizonYear, cv.CurrentYear); w != "" {
		warnings = append(warnings, w)
	}
	if w := ValidateWorkers(cv.Workers, cv.Driver); w != "" {
		warnings = append(warnings, w)
	}

	return warnings
}
