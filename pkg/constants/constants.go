// Package constants provides shared constants for the capex-depreciation application.
package constants

// DateTimeLayout is the period format used for monthly depreciation records
// and in every report and export.
const DateTimeLayout = "2006-01"

// YearLayout is the period format used for yearly depreciation records.
const YearLayout = "2006"

// Financial constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// CurrencyPlaces is the number of decimal places kept for currency amounts
	CurrencyPlaces = 2

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100

	// MaxRatePercent is the largest annual rate accepted for the percentage method
	MaxRatePercent = 100
)

// Engine defaults
const (
	// DefaultHorizonYear is the last calendar year a schedule is generated for
	// when the configuration does not set one.
	DefaultHorizonYear = 2040

	// DefaultWorkers is the number of projects processed at once by a batch run.
	DefaultWorkers = 1
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// EnvPrefix is the prefix for environment variable overrides
	EnvPrefix = "CAPEX"
)

// Database defaults
const (
	// DriverSQLite selects the embedded SQLite store
	DriverSQLite = "sqlite"

	// DriverPostgres selects the PostgreSQL store
	DriverPostgres = "postgres"

	// DefaultSQLitePath is the database file used when none is configured
	DefaultSQLitePath = "capex.db"

	// DefaultPostgresPort is the PostgreSQL port used when none is configured
	DefaultPostgresPort = 5432
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the web API
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum upload size for spreadsheets (10 MB)
	DefaultMaxUploadSizeBytes int64 = 10 * 1024 * 1024
)

// Validation constants
const (
	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01
)
