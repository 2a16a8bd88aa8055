package backtest

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"meanrev/internal/domain"
	"meanrev/internal/portfolio"
	"meanrev/internal/signal"
)

func testDates(n int) []time.Time {
	out := make([]time.Time, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = base.AddDate(0, 0, i)
	}
	return out
}

func mustPanel(t *testing.T, dates []time.Time, series map[string][]float64) *domain.PricePanel {
	t.Helper()
	p, err := domain.NewPricePanel(dates, series)
	if err != nil {
		t.Fatalf("NewPricePanel: %v", err)
	}
	return p
}

// constWeights builds a weight matrix holding the same weights on every date
// after the first.
func constWeights(dates []time.Time, weights map[string]float64) *domain.WeightMatrix {
	m := &domain.WeightMatrix{
		Dates:   dates,
		Weights: make(map[string][]float64, len(weights)),
	}
	for asset, w := range weights {
		s := make([]float64, len(dates))
		for i := 1; i < len(dates); i++ {
			s[i] = w
		}
		m.Weights[asset] = s
	}
	return m
}

func TestRunZeroCostCompounding(t *testing.T) {
	// With zero transaction cost and constant target weights, equity follows
	// exactly the weighted asset returns compounded daily.
	dates := testDates(5)
	panel := mustPanel(t, dates, map[string][]float64{
		"A": {100, 100, 110, 99, 108.9},
		"B": {50, 50, 45, 54, 51.3},
	})
	weights := constWeights(dates, map[string]float64{"A": 0.6, "B": -0.4})

	sim := NewSimulator(Config{InitialCapital: 10000, TransactionCost: 0, GapPolicy: domain.GapFail})
	res, err := sim.Run(panel, weights)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Positions are established on day 1, so returns accrue from day 2 on.
	expected := 10000.0
	aPrices := []float64{100, 100, 110, 99, 108.9}
	bPrices := []float64{50, 50, 45, 54, 51.3}
	for i := 2; i < 5; i++ {
		r := 0.6*(aPrices[i]/aPrices[i-1]-1) - 0.4*(bPrices[i]/bPrices[i-1]-1)
		expected *= 1 + r
	}

	got := res.Curve[len(res.Curve)-1].Equity
	if math.Abs(got-expected) > 1e-9*expected {
		t.Errorf("final equity = %v, want %v", got, expected)
	}
}

func TestRunDeterminism(t *testing.T) {
	dates := testDates(6)
	panel := mustPanel(t, dates, map[string][]float64{
		"A": {100, 102, 101, 105, 103, 104},
		"B": {40, 39, 41, 40, 42, 41},
	})
	weights := constWeights(dates, map[string]float64{"A": 0.3, "B": -0.3})

	sim := NewSimulator(Config{InitialCapital: 50000, TransactionCost: 0.001, GapPolicy: domain.GapFail})
	res1, err := sim.Run(panel, weights)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	res2, err := sim.Run(panel, weights)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if !reflect.DeepEqual(res1.Curve, res2.Curve) {
		t.Error("two runs on identical inputs produced different equity curves")
	}
	if !reflect.DeepEqual(res1.Trades, res2.Trades) {
		t.Error("two runs on identical inputs produced different trade logs")
	}
}

func TestRunTransactionCost(t *testing.T) {
	dates := testDates(3)
	panel := mustPanel(t, dates, map[string][]float64{
		"A": {100, 100, 100},
	})
	weights := constWeights(dates, map[string]float64{"A": 0.5})

	const tc = 0.002
	sim := NewSimulator(Config{InitialCapital: 10000, TransactionCost: tc, GapPolicy: domain.GapFail})
	res, err := sim.Run(panel, weights)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Day 1: no market move, one trade of |delta| = 0.5.
	wantEquity := 10000 * (1 - 0.5*tc)
	if got := res.Curve[1].Equity; math.Abs(got-wantEquity) > 1e-9 {
		t.Errorf("equity after first rebalance = %v, want %v", got, wantEquity)
	}
	if got := res.Curve[1].Turnover; got != 0.5 {
		t.Errorf("turnover day 1 = %v, want 0.5", got)
	}

	// Day 2: target unchanged, no trade, no cost.
	if got := res.Curve[2].Turnover; got != 0 {
		t.Errorf("turnover day 2 = %v, want 0", got)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trade log has %d entries, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Asset != "A" || tr.Delta != 0.5 {
		t.Errorf("trade = %+v, want A delta 0.5", tr)
	}
	if math.Abs(tr.Cost-0.5*tc*10000) > 1e-9 {
		t.Errorf("trade cost = %v, want %v", tr.Cost, 0.5*tc*10000)
	}
}

func TestRunGapFail(t *testing.T) {
	dates := testDates(4)
	panel := mustPanel(t, dates, map[string][]float64{
		"A": {100, 101, math.NaN(), 103},
	})
	weights := constWeights(dates, map[string]float64{"A": 0.5})

	sim := NewSimulator(Config{InitialCapital: 10000, GapPolicy: domain.GapFail})
	_, err := sim.Run(panel, weights)
	if !errors.Is(err, domain.ErrMissingPrice) {
		t.Errorf("Run with gap = %v, want ErrMissingPrice", err)
	}
}

func TestRunGapHold(t *testing.T) {
	dates := testDates(4)
	panel := mustPanel(t, dates, map[string][]float64{
		"A": {100, 100, math.NaN(), 100},
	})
	weights := constWeights(dates, map[string]float64{"A": 0.5})

	sim := NewSimulator(Config{InitialCapital: 10000, GapPolicy: domain.GapHold})
	res, err := sim.Run(panel, weights)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The gapped days contribute zero return and no trading in A.
	if got := res.Curve[2].Return; got != 0 {
		t.Errorf("return on gap day = %v, want 0", got)
	}
	if got := res.Curve[2].Turnover; got != 0 {
		t.Errorf("turnover on gap day = %v, want 0", got)
	}
	if got := res.Curve[3].Equity; got != 10000 {
		t.Errorf("final equity = %v, want 10000 with flat prices and zero cost", got)
	}
	// Position survives the gap at its held weight.
	if len(res.Trades) != 1 {
		t.Errorf("trade log has %d entries, want the single initial rebalance", len(res.Trades))
	}
}

func TestRunRuinFreezes(t *testing.T) {
	// A cost large enough to consume all equity on a full flip pins the run
	// at zero and stops all further trading.
	dates := testDates(5)
	panel := mustPanel(t, dates, map[string][]float64{
		"A": {100, 100, 100, 100, 100},
	})

	w := make([]float64, 5)
	w[1] = 1
	w[2] = -1
	w[3] = 1
	weights := &domain.WeightMatrix{Dates: dates, Weights: map[string][]float64{"A": w}}

	sim := NewSimulator(Config{InitialCapital: 10000, TransactionCost: 0.6, GapPolicy: domain.GapFail})
	res, err := sim.Run(panel, weights)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Ruined {
		t.Fatal("run should be flagged ruined")
	}
	// Day 1: cost 0.6 × equity on turnover 1. Day 2: turnover 2 costs 120%
	// of equity — ruin.
	if got := res.Curve[2].Equity; got != 0 {
		t.Errorf("equity on ruin day = %v, want 0", got)
	}
	if got := res.Curve[2].Return; got != -1 {
		t.Errorf("return on ruin day = %v, want -1", got)
	}
	for i := 3; i < 5; i++ {
		p := res.Curve[i]
		if p.Equity != 0 || p.Turnover != 0 || !p.Ruined {
			t.Errorf("post-ruin point %d = %+v, want frozen zero state", i, p)
		}
	}
	// No trades after the ruin day.
	for _, tr := range res.Trades {
		if tr.Date.After(dates[2]) {
			t.Errorf("trade after ruin: %+v", tr)
		}
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	dates := testDates(2)
	panel := mustPanel(t, dates, map[string][]float64{"A": {100, 101}})
	weights := constWeights(dates, map[string]float64{"A": 0.5})

	sim := NewSimulator(Config{InitialCapital: 0})
	if _, err := sim.Run(panel, weights); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Run with zero capital = %v, want ErrInvalidConfig", err)
	}

	sim = NewSimulator(Config{InitialCapital: 1000, TransactionCost: -1})
	if _, err := sim.Run(panel, weights); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Run with negative cost = %v, want ErrInvalidConfig", err)
	}
}

func TestFullPipelineShortEntry(t *testing.T) {
	// Two assets flat at 100 for 25 days, then A jumps to 130. The jump
	// flips A short, the weight caps at -0.2, and the next day's equity
	// reflects -0.2 times A's return.
	n := 27
	dates := testDates(n)
	aPrices := make([]float64, n)
	bPrices := make([]float64, n)
	for i := range aPrices {
		aPrices[i] = 100
		bPrices[i] = 100
	}
	aPrices[25] = 130
	aPrices[26] = 120

	panel := mustPanel(t, dates, map[string][]float64{"A": aPrices, "B": bPrices})

	gen := signal.NewMeanReversion(20, 1.0, 0.5)
	signals, err := gen.Signals(panel)
	if err != nil {
		t.Fatalf("Signals: %v", err)
	}
	if got := signals.At("A", 25); got != domain.Short {
		t.Fatalf("A signal on jump day = %v, want short", got)
	}

	weights, err := portfolio.Build(signals, 0.2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := weights.At("A", 25); got != -0.2 {
		t.Fatalf("A target weight on jump day = %v, want -0.2", got)
	}

	sim := NewSimulator(Config{InitialCapital: 100000, TransactionCost: 0, GapPolicy: domain.GapFail})
	res, err := sim.Run(panel, weights)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Day 26 return: -0.2 × (120/130 - 1).
	wantReturn := -0.2 * (120.0/130.0 - 1)
	if got := res.Curve[26].Return; math.Abs(got-wantReturn) > 1e-12 {
		t.Errorf("day-after return = %v, want %v", got, wantReturn)
	}
	wantEquity := 100000 * (1 + wantReturn)
	if got := res.Curve[26].Equity; math.Abs(got-wantEquity) > 1e-6 {
		t.Errorf("day-after equity = %v, want %v", got, wantEquity)
	}
}
