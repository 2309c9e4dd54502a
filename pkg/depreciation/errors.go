package depreciation

import "errors"

// Sentinel errors. Callers match them with errors.Is; every error returned by
// this package wraps exactly one of them.
var (
	// ErrConfiguration means the project has no usable depreciation method.
	ErrConfiguration = errors.New("invalid depreciation method configuration")

	// ErrMissingDepreciationStart means no investment carries a start marker.
	ErrMissingDepreciationStart = errors.New("no investment carries a depreciation start")

	// ErrDataShape means an investment event is malformed.
	ErrDataShape = errors.New("malformed investment data")

	// ErrInvalidTimeline means the calculator was handed an empty, unordered
	// or mismatched timeline. It signals a programming error, not bad input.
	ErrInvalidTimeline = errors.New("invalid depreciation timeline")
)
