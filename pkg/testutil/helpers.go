// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/iwvelando/capex-depreciation/pkg/datetime"
	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
	"github.com/iwvelando/capex-depreciation/pkg/mathutil"
	"github.com/shopspring/decimal"
)

// FindRecord finds the record for period in records.
// Returns a pointer to the record if found, nil otherwise.
func FindRecord(records []depreciation.Record, period datetime.Period) *depreciation.Record {
	for i := range records {
		if records[i].Period == period {
			return &records[i]
		}
	}
	return nil
}

// TotalCharge sums the charges of records.
func TotalCharge(records []depreciation.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Charge)
	}
	return total
}

// NonIncreasing reports the index of the first record whose remaining value
// exceeds its predecessor's, or -1 if remaining never increases.
func NonIncreasing(records []depreciation.Record) int {
	for i := 1; i < len(records); i++ {
		if records[i].Remaining.GreaterThan(records[i-1].Remaining) {
			return i
		}
	}
	return -1
}

// Conserved reports whether the charges plus the final remaining value of
// records account for invested to within a cent.
func Conserved(records []depreciation.Record, invested decimal.Decimal) bool {
	if len(records) == 0 {
		return invested.IsZero()
	}
	accounted := TotalCharge(records).Add(records[len(records)-1].Remaining)
	return mathutil.WithinTolerance(accounted, invested, decimal.New(1, -2))
}
