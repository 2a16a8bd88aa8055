package domain

import "errors"

// Sentinel errors for the failure modes the backtester distinguishes.
// Callers match with errors.Is; sites wrap with fmt.Errorf("...: %w", ...)
// to add the offending asset, date, or field.
var (
	// ErrInvalidConfig marks a configuration rejected before any simulation
	// starts.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInsufficientHistory marks an asset with fewer observations than the
	// lookback window. It is per-asset: other assets still produce signals.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrMissingPrice marks a gap in the price panel inside the simulated
	// range, under the GapFail policy.
	ErrMissingPrice = errors.New("missing price data")

	// ErrComputation marks NaN or Inf escaping into simulated equity.
	ErrComputation = errors.New("computation error")
)
