// Package backtest replays target portfolio weights over a historical price
// panel and computes risk/return statistics from the realized equity curve.
package backtest

import (
	"fmt"
	"log/slog"
	"math"

	"meanrev/internal/domain"
)

// Config holds the simulation parameters.
type Config struct {
	InitialCapital  float64
	TransactionCost float64 // fraction of traded notional
	GapPolicy       domain.GapPolicy
}

// Result is the output of one simulation run.
type Result struct {
	Curve  domain.EquityCurve
	Trades []domain.Trade
	Ruined bool
}

// Simulator walks the calendar day by day, marking held positions to market,
// rebalancing to the target weights, and charging transaction costs on the
// traded notional. The walk is strictly sequential: each day's held weights
// depend on the previous day's, so time steps are never parallelized.
type Simulator struct {
	cfg Config
	log *slog.Logger
}

// NewSimulator creates a Simulator with the given parameters.
func NewSimulator(cfg Config) *Simulator {
	return &Simulator{
		cfg: cfg,
		log: slog.Default().With("component", "simulator"),
	}
}

// Run simulates the target weights over the panel. Per date, in order:
// mark yesterday's positions to market, read today's targets, charge
// transaction cost on the total weight change, then hold the targets.
//
// Ruin policy: if equity reaches zero the run freezes. Equity pins at 0,
// no further trading happens, and every remaining date emits a zero-return
// point flagged Ruined. Ruin is a terminal strategy outcome, not an error.
//
// Missing prices follow cfg.GapPolicy: GapFail aborts with ErrMissingPrice;
// GapHold keeps the gapped asset at its held weight with zero return for
// that date.
func (s *Simulator) Run(panel *domain.PricePanel, weights *domain.WeightMatrix) (*Result, error) {
	if s.cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial_capital must be positive, got %v",
			domain.ErrInvalidConfig, s.cfg.InitialCapital)
	}
	if s.cfg.TransactionCost < 0 {
		return nil, fmt.Errorf("%w: transaction_cost must be >= 0, got %v",
			domain.ErrInvalidConfig, s.cfg.TransactionCost)
	}

	n := panel.Len()
	assets := panel.Assets()

	equity := s.cfg.InitialCapital
	held := make(map[string]float64, len(assets))
	ruined := false

	curve := make(domain.EquityCurve, 0, n)
	var trades []domain.Trade

	// t0: all flat, full capital, nothing to rebalance yet.
	curve = append(curve, domain.EquityPoint{
		Date:   panel.Date(0),
		Equity: equity,
	})

	for i := 1; i < n; i++ {
		date := panel.Date(i)

		if ruined {
			curve = append(curve, domain.EquityPoint{Date: date, Ruined: true})
			continue
		}

		// Gapped assets neither earn returns nor trade today.
		gapped := make(map[string]bool)
		for _, asset := range assets {
			_, okPrev := panel.Price(asset, i-1)
			_, okNow := panel.Price(asset, i)
			if okPrev && okNow {
				continue
			}
			if s.cfg.GapPolicy == domain.GapFail {
				return nil, fmt.Errorf("%w: asset %s on %s",
					domain.ErrMissingPrice, asset, date.Format("2006-01-02"))
			}
			gapped[asset] = true
		}

		// Mark-to-market yesterday's positions.
		prevEquity := equity
		portReturn := 0.0
		for _, asset := range assets {
			w := held[asset]
			if w == 0 || gapped[asset] {
				continue
			}
			prev, _ := panel.Price(asset, i-1)
			now, _ := panel.Price(asset, i)
			portReturn += w * (now/prev - 1)
		}
		equity *= 1 + portReturn

		// Rebalance to today's targets and charge cost on the traded notional.
		turnover := 0.0
		if equity > 0 {
			equityAtTrade := equity
			for _, asset := range assets {
				target := weights.At(asset, i)
				if gapped[asset] {
					target = held[asset]
				}
				delta := target - held[asset]
				if delta == 0 {
					held[asset] = target
					continue
				}
				turnover += math.Abs(delta)
				trades = append(trades, domain.Trade{
					Date:     date,
					Asset:    asset,
					Delta:    delta,
					Notional: math.Abs(delta) * equityAtTrade,
					Cost:     math.Abs(delta) * s.cfg.TransactionCost * equityAtTrade,
				})
				held[asset] = target
			}
			equity -= turnover * s.cfg.TransactionCost * equityAtTrade
		}

		if math.IsNaN(equity) || math.IsInf(equity, 0) {
			return nil, fmt.Errorf("%w: equity is %v on %s",
				domain.ErrComputation, equity, date.Format("2006-01-02"))
		}

		dailyReturn := equity/prevEquity - 1

		if equity <= 0 {
			ruined = true
			equity = 0
			for asset := range held {
				held[asset] = 0
			}
			dailyReturn = -1
			s.log.Warn("equity hit the ruin floor, freezing run",
				"date", date.Format("2006-01-02"))
		}

		curve = append(curve, domain.EquityPoint{
			Date:     date,
			Equity:   equity,
			Return:   dailyReturn,
			Turnover: turnover,
			Ruined:   ruined,
		})
	}

	s.log.Info("simulation complete",
		"days", len(curve),
		"trades", len(trades),
		"finalEquity", equity,
		"ruined", ruined)

	return &Result{Curve: curve, Trades: trades, Ruined: ruined}, nil
}
