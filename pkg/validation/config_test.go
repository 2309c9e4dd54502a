package validation

import (
	"strings"
	"testing"
)

func TestValidateHorizon(t *testing.T) {
	if w := ValidateHorizon(2040, 2026); w != "" {
		t.Errorf("ValidateHorizon() = %q, expected no warning", w)
	}
	if w := ValidateHorizon(2026, 2026); w != "" {
		t.Errorf("ValidateHorizon() = %q, expected no warning for current year", w)
	}
	if w := ValidateHorizon(2020, 2026); !strings.Contains(w, "2020") {
		t.Errorf("ValidateHorizon() = %q, expected warning mentioning 2020", w)
	}
}

func TestValidateWorkers(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		driver  string
		warn    bool
	}{
		{"Sequential sqlite", 1, "sqlite", false},
		{"Parallel sqlite", 4, "sqlite", true},
		{"Parallel postgres", 4, "postgres", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateWorkers(tt.workers, tt.driver) != ""; got != tt.warn {
				t.Errorf("ValidateWorkers(%d, %s) warned = %v, expected %v", tt.workers, tt.driver, got, tt.warn)
			}
		})
	}
}

func TestValidateColumns(t *testing.T) {
	header := []string{" Project_ID ", "branch", "Description"}

	if err := ValidateColumns("projects", header, []string{"project_id", "branch"}); err != nil {
		t.Errorf("ValidateColumns() unexpected error = %v", err)
	}

	err := ValidateColumns("projects", header, []string{"project_id", "operations", "depreciation_method"})
	if err == nil {
		t.Fatal("ValidateColumns() expected error but got none")
	}
	if !strings.Contains(err.Error(), "operations, depreciation_method") {
		t.Errorf("ValidateColumns() error = %v, expected missing columns listed", err)
	}
}

func TestConfigValidator_ValidateAll(t *testing.T) {
	tests := []struct {
		name            string
		validator       ConfigValidator
		expectWarnCount int
	}{
		{
			name:            "Valid configuration",
			validator:       ConfigValidator{HorizonYear: 2040, Workers: 1, Driver: "sqlite", CurrentYear: 2026},
			expectWarnCount: 0,
		},
		{
			name:            "Past horizon and parallel sqlite",
			validator:       ConfigValidator{HorizonYear: 2020, Workers: 8, Driver: "sqlite", CurrentYear: 2026},
			expectWarnCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := tt.validator.ValidateAll()
			if len(warnings) != tt.expectWarnCount {
				t.Errorf("ValidateAll() returned %d warnings, expected %d: %v", len(warnings), tt.expectWarnCount, warnings)
			}
		})
	}
}
