// Package domain defines the core data model shared across the meanrev
// backtester: price panels, signal states, weight matrices, trades, equity
// curves, and metrics reports.
package domain

import (
	"fmt"
	"time"
)

// SignalState is the directional state of a single asset's signal.
type SignalState int

// Signal states. The state machine in internal/signal transitions between
// these with hysteresis.
const (
	Flat SignalState = iota
	Long
	Short
)

// String returns a human-readable name for the state.
func (s SignalState) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Sign returns the directional multiplier for the state: +1 for Long, -1 for
// Short, 0 for Flat.
func (s SignalState) Sign() float64 {
	switch s {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// GapPolicy controls how the simulator treats a missing price inside the
// simulated range.
type GapPolicy string

const (
	// GapFail aborts the run with ErrMissingPrice on the first gap.
	GapFail GapPolicy = "fail"

	// GapHold keeps the asset at its last held weight with zero return for
	// the gapped date.
	GapHold GapPolicy = "hold"
)

// ParseGapPolicy validates a configuration string as a GapPolicy.
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch GapPolicy(s) {
	case GapFail, GapHold:
		return GapPolicy(s), nil
	case "":
		return GapFail, nil
	default:
		return "", fmt.Errorf("%w: unknown gap_policy %q", ErrInvalidConfig, s)
	}
}

// Bar is a single daily price bar as stored in the parquet cache.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// SignalMatrix holds the per-date signal state of every asset, aligned to the
// panel's date index.
type SignalMatrix struct {
	Dates  []time.Time
	States map[string][]SignalState
}

// At returns the state for asset at date index i, or Flat if the asset is
// unknown.
func (m *SignalMatrix) At(asset string, i int) SignalState {
	states, ok := m.States[asset]
	if !ok {
		return Flat
	}
	return states[i]
}

// WeightMatrix holds per-date target portfolio weights, aligned to the
// panel's date index.
type WeightMatrix struct {
	Dates   []time.Time
	Weights map[string][]float64
}

// At returns the target weight for asset at date index i, or 0 if the asset
// is unknown.
func (m *WeightMatrix) At(asset string, i int) float64 {
	w, ok := m.Weights[asset]
	if !ok {
		return 0
	}
	return w[i]
}

// Trade is one rebalancing fill: the weight change applied to a single asset
// on a single date, with the notional traded and the cost charged.
type Trade struct {
	Date     time.Time
	Asset    string
	Delta    float64 // target weight minus held weight
	Notional float64 // |Delta| × equity at time of trade
	Cost     float64 // transaction cost deducted for this fill
}

// EquityPoint is one day of the realized equity curve.
type EquityPoint struct {
	Date     time.Time
	Equity   float64
	Return   float64 // net daily return including costs
	Turnover float64 // sum of |weight delta| across assets
	Ruined   bool    // true once equity has hit the ruin floor
}

// EquityCurve is the simulator's primary output artifact: one point per
// simulated date, in chronological order.
type EquityCurve []EquityPoint

// Returns extracts the daily net return series from the curve.
func (c EquityCurve) Returns() []float64 {
	rets := make([]float64, len(c))
	for i, p := range c {
		rets[i] = p.Return
	}
	return rets
}

// MetricsReport is the summary statistics computed from an equity curve.
// SharpeRatio is NaN when the return series has zero variance.
type MetricsReport struct {
	SharpeRatio  float64
	MaxDrawdown  float64
	WinRate      float64
	AvgTurnover  float64
	TotalReturn  float64
	FinalEquity  float64
	TradeCount   int
}
