package backtest

import (
	"encoding/csv"
	"os"
	"strconv"

	"meanrev/internal/domain"
)

// WriteEquityCSV exports the equity curve as a CSV table with columns
// {date, equity, daily_return, turnover}.
func WriteEquityCSV(path string, curve domain.EquityCurve) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"date", "equity", "daily_return", "turnover"}); err != nil {
		return err
	}
	for _, p := range curve {
		row := []string{
			p.Date.Format("2006-01-02"),
			fmtFloat(p.Equity),
			fmtFloat(p.Return),
			fmtFloat(p.Turnover),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

// WriteTradesCSV exports the trade log as a CSV table with columns
// {date, asset, delta, notional, cost}.
func WriteTradesCSV(path string, trades []domain.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"date", "asset", "delta", "notional", "cost"}); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Date.Format("2006-01-02"),
			t.Asset,
			fmtFloat(t.Delta),
			fmtFloat(t.Notional),
			fmtFloat(t.Cost),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
