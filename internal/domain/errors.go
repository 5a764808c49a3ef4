package domain

import "errors"

// Error taxonomy. NotFound is fatal for the single calculation that hit it;
// everything else degrades to defaults and is logged, never propagated as a
// batch failure.
var (
	// ErrNotFound: the subject record or ML prediction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientData: too few rows to calibrate or classify confidently.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrRuleParse: a single rule definition is unusable.
	ErrRuleParse = errors.New("rule parse error")

	// ErrUpstreamUnavailable: a definition store is unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
