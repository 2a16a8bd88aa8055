// Package portfolio converts per-asset signals into risk-capped target
// portfolio weights.
package portfolio

import (
	"fmt"

	"meanrev/internal/domain"
)

// Build assigns each date's active signals an equal share of capital with
// sign from the signal direction, then clamps each weight to
// maxPositionSize. Capital freed by clamping is not redistributed: it sits
// uninvested. The resulting matrix always satisfies sum(|w|) <= 1 per date
// and |w| <= maxPositionSize per asset.
func Build(signals *domain.SignalMatrix, maxPositionSize float64) (*domain.WeightMatrix, error) {
	if maxPositionSize <= 0 || maxPositionSize > 1 {
		return nil, fmt.Errorf("%w: max_position_size must be in (0, 1], got %v",
			domain.ErrInvalidConfig, maxPositionSize)
	}

	n := len(signals.Dates)
	matrix := &domain.WeightMatrix{
		Dates:   signals.Dates,
		Weights: make(map[string][]float64, len(signals.States)),
	}
	for asset := range signals.States {
		matrix.Weights[asset] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		active := 0
		for asset := range signals.States {
			if signals.At(asset, i) != domain.Flat {
				active++
			}
		}
		if active == 0 {
			continue
		}

		raw := 1.0 / float64(active)
		w := raw
		if w > maxPositionSize {
			w = maxPositionSize
		}

		for asset := range signals.States {
			matrix.Weights[asset][i] = signals.At(asset, i).Sign() * w
		}
	}

	return matrix, nil
}
