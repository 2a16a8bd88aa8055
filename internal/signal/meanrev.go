package signal

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"meanrev/internal/domain"
)

// Compile-time interface check.
var _ Generator = (*MeanReversion)(nil)

// MeanReversion generates long/flat/short signals from a rolling z-score of
// price. Entries open when the z-score breaches entryZ in either direction;
// an open position holds through the hysteresis band and closes only once
// the z-score crosses back past exitZ.
type MeanReversion struct {
	lookback int
	entryZ   float64
	exitZ    float64
	log      *slog.Logger
}

// NewMeanReversion creates a MeanReversion generator. lookback is the rolling
// window length; entryZ and exitZ are the entry and exit thresholds with
// 0 <= exitZ < entryZ.
func NewMeanReversion(lookback int, entryZ, exitZ float64) *MeanReversion {
	return &MeanReversion{
		lookback: lookback,
		entryZ:   entryZ,
		exitZ:    exitZ,
		log:      slog.Default().With("generator", "mean-reversion"),
	}
}

// Name returns "mean-reversion".
func (g *MeanReversion) Name() string { return "mean-reversion" }

// Signals computes the rolling z-score for every asset independently and
// runs the hysteresis state machine over it. Assets whose series is shorter
// than the lookback window come back all-flat and contribute an
// ErrInsufficientHistory to the joined error; the matrix itself is always
// usable.
func (g *MeanReversion) Signals(panel *domain.PricePanel) (*domain.SignalMatrix, error) {
	n := panel.Len()
	matrix := &domain.SignalMatrix{
		Dates:  panel.Dates(),
		States: make(map[string][]domain.SignalState, len(panel.Assets())),
	}

	var errs []error
	for _, asset := range panel.Assets() {
		series, _ := panel.Series(asset)

		observed := 0
		for _, p := range series {
			if !math.IsNaN(p) {
				observed++
			}
		}
		if observed < g.lookback {
			g.log.Warn("asset has insufficient history, staying flat",
				"asset", asset, "observations", observed, "lookback", g.lookback)
			matrix.States[asset] = make([]domain.SignalState, n)
			errs = append(errs, fmt.Errorf("%w: asset %s has %d observations, lookback %d",
				domain.ErrInsufficientHistory, asset, observed, g.lookback))
			continue
		}

		zscores := RollingZScores(series, g.lookback)

		states := make([]domain.SignalState, n)
		state := domain.Flat
		for i := 0; i < n; i++ {
			state = Transition(state, zscores[i], g.entryZ, g.exitZ)
			states[i] = state
		}
		matrix.States[asset] = states
	}

	return matrix, errors.Join(errs...)
}

// RollingZScores computes the z-score of each observation against the mean
// and sample standard deviation of the trailing window. Entries before the
// window is full, and windows containing a gap, are NaN. A zero-variance
// window (constant price) yields a z-score of 0 rather than dividing by
// zero.
func RollingZScores(series []float64, window int) []float64 {
	z := make([]float64, len(series))
	for i := range z {
		z[i] = math.NaN()
	}

	for i := window - 1; i < len(series); i++ {
		w := series[i-window+1 : i+1]

		gap := false
		lo, hi := w[0], w[0]
		sum := 0.0
		for _, p := range w {
			if math.IsNaN(p) {
				gap = true
				break
			}
			sum += p
			if p < lo {
				lo = p
			}
			if p > hi {
				hi = p
			}
		}
		if gap {
			continue
		}
		if lo == hi {
			// Constant window: zero volatility, z-score defined as 0.
			z[i] = 0
			continue
		}

		mean := sum / float64(window)
		var ss float64
		for _, p := range w {
			d := p - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(window-1))
		z[i] = (series[i] - mean) / std
	}
	return z
}

// Transition is the pure per-asset state machine. A NaN z-score (warmup or
// gap) leaves the state unchanged. The band between exitZ and entryZ holds
// existing positions without opening new ones.
func Transition(state domain.SignalState, z, entryZ, exitZ float64) domain.SignalState {
	if math.IsNaN(z) {
		return state
	}
	switch state {
	case domain.Flat:
		if z >= entryZ {
			return domain.Short
		}
		if z <= -entryZ {
			return domain.Long
		}
	case domain.Short:
		if z <= exitZ {
			return domain.Flat
		}
	case domain.Long:
		if z >= -exitZ {
			return domain.Flat
		}
	}
	return state
}
