package backtest

import (
	"fmt"
	"math"

	"meanrev/internal/domain"
)

// tradingDaysPerYear annualizes daily statistics.
const tradingDaysPerYear = 252

// ComputeMetrics derives summary statistics from an equity curve. The first
// point is the capital seed and carries no return, so all return-based
// statistics cover curve[1:]. A zero-variance return series reports Sharpe
// as NaN rather than failing; NaN is the documented convention for an
// undefined ratio.
func ComputeMetrics(curve domain.EquityCurve, tradeCount int) (*domain.MetricsReport, error) {
	if len(curve) < 2 {
		return nil, fmt.Errorf("%w: equity curve has %d points, need at least 2",
			domain.ErrComputation, len(curve))
	}
	for _, p := range curve {
		if math.IsNaN(p.Equity) || math.IsInf(p.Equity, 0) {
			return nil, fmt.Errorf("%w: non-finite equity on %s",
				domain.ErrComputation, p.Date.Format("2006-01-02"))
		}
	}

	returns := curve[1:].Returns()

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	if len(returns) > 1 {
		for _, r := range returns {
			d := r - mean
			variance += d * d
		}
		variance /= float64(len(returns) - 1)
	}
	std := math.Sqrt(variance)

	sharpe := math.NaN()
	if std > 0 {
		sharpe = mean / std * math.Sqrt(tradingDaysPerYear)
	}

	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}

	maxDD := 0.0
	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}

	turnover := 0.0
	for _, p := range curve[1:] {
		turnover += p.Turnover
	}

	first := curve[0].Equity
	last := curve[len(curve)-1].Equity

	return &domain.MetricsReport{
		SharpeRatio: sharpe,
		MaxDrawdown: maxDD,
		WinRate:     float64(wins) / float64(len(returns)),
		AvgTurnover: turnover / float64(len(returns)),
		TotalReturn: last/first - 1,
		FinalEquity: last,
		TradeCount:  tradeCount,
	}, nil
}
