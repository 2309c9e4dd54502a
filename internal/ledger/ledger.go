// Package ledger defines the persistence contract the depreciation engine
// depends on.
package ledger

import (
	"context"
	"errors"

	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
)

// ErrProjectNotFound is returned when a project id is unknown.
var ErrProjectNotFound = errors.New("project not found")

// InvestmentReader supplies the investment events booked against a project.
type InvestmentReader interface {
	// InvestmentEvents returns every event for the project, start markers
	// included, in calendar order.
	InvestmentEvents(ctx context.Context, projectID string) ([]depreciation.InvestmentEvent, error)
}

// MethodReader supplies a project's stored method configuration.
type MethodReader interface {
	// MethodParameters returns ErrProjectNotFound for unknown projects and
	// HasMethod=false when the project references no method.
	MethodParameters(ctx context.Context, projectID string) (depreciation.MethodParameters, error)
}

// RecordWriter persists calculated depreciation.
type RecordWriter interface {
	// ReplaceDepreciationRecords atomically removes every stored record for
	// the project and inserts the given ones.
	ReplaceDepreciationRecords(ctx context.Context, projectID string, kind depreciation.Kind, records []depreciation.Record) error
}

// ProjectLister enumerates projects for batch runs.
type ProjectLister interface {
	ProjectIDs(ctx context.Context) ([]string, error)
}

// Ledger is everything the calculation service needs from storage.
type Ledger interface {
	InvestmentReader
	MethodReader
	RecordWriter
	ProjectLister
}
