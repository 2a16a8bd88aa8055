// Package store persists price history and backtest results: daily bars in
// Parquet files on disk, completed runs in SQLite.
package store

import (
	"context"
	"time"

	"meanrev/internal/domain"
)

// BarStore persists and retrieves daily price bars.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in storage.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord summarizes one completed backtest for persistence.
type RunRecord struct {
	ID        int64
	CreatedAt time.Time

	// Parameters the run was produced with.
	Assets          []string
	StartDate       string
	EndDate         string
	InitialCapital  float64
	LookbackWindow  int
	EntryZScore     float64
	ExitZScore      float64
	MaxPositionSize float64
	TransactionCost float64

	Report domain.MetricsReport
	Ruined bool
}

// RunStore persists and retrieves completed backtest runs with their equity
// curves and trade logs.
type RunStore interface {
	// SaveRun inserts a run summary along with its curve and trades, and
	// returns the new run ID.
	SaveRun(ctx context.Context, run *RunRecord, curve domain.EquityCurve, trades []domain.Trade) (int64, error)

	// GetRun retrieves a single run summary by its ID.
	GetRun(ctx context.Context, id int64) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// GetEquityCurve retrieves the stored equity curve for a run.
	GetEquityCurve(ctx context.Context, id int64) (domain.EquityCurve, error)

	// GetTrades retrieves the stored trade log for a run.
	GetTrades(ctx context.Context, id int64) ([]domain.Trade, error)
}
