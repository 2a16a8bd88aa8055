package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"meanrev/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database. It keeps a
// history of completed backtests for later comparison and reporting.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at        TEXT    NOT NULL,
	assets            TEXT    NOT NULL,
	start_date        TEXT    NOT NULL,
	end_date          TEXT    NOT NULL,
	initial_capital   REAL    NOT NULL,
	lookback_window   INTEGER NOT NULL,
	entry_zscore      REAL    NOT NULL,
	exit_zscore       REAL    NOT NULL,
	max_position_size REAL    NOT NULL,
	transaction_cost  REAL    NOT NULL,
	sharpe_ratio      REAL,
	max_drawdown      REAL    NOT NULL,
	win_rate          REAL    NOT NULL,
	avg_turnover      REAL    NOT NULL,
	total_return      REAL    NOT NULL,
	final_equity      REAL    NOT NULL,
	trade_count       INTEGER NOT NULL,
	ruined            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS equity_points (
	run_id       INTEGER NOT NULL REFERENCES runs(id),
	date         TEXT    NOT NULL,
	equity       REAL    NOT NULL,
	daily_return REAL    NOT NULL,
	turnover     REAL    NOT NULL,
	ruined       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_equity_points_run ON equity_points(run_id);

CREATE TABLE IF NOT EXISTS trades (
	run_id   INTEGER NOT NULL REFERENCES runs(id),
	date     TEXT    NOT NULL,
	asset    TEXT    NOT NULL,
	delta    REAL    NOT NULL,
	notional REAL    NOT NULL,
	cost     REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run summary, its equity curve, and its trade log in a
// single transaction and returns the new run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord, curve domain.EquityCurve, trades []domain.Trade) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			created_at, assets, start_date, end_date, initial_capital,
			lookback_window, entry_zscore, exit_zscore, max_position_size,
			transaction_cost, sharpe_ratio, max_drawdown, win_rate,
			avg_turnover, total_return, final_equity, trade_count, ruined
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		createdAt.Format(time.RFC3339),
		strings.Join(run.Assets, ","),
		run.StartDate,
		run.EndDate,
		run.InitialCapital,
		run.LookbackWindow,
		run.EntryZScore,
		run.ExitZScore,
		run.MaxPositionSize,
		run.TransactionCost,
		nullableFloat(run.Report.SharpeRatio),
		run.Report.MaxDrawdown,
		run.Report.WinRate,
		run.Report.AvgTurnover,
		run.Report.TotalReturn,
		run.Report.FinalEquity,
		run.Report.TradeCount,
		run.Ruined,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	pointStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO equity_points (run_id, date, equity, daily_return, turnover, ruined)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer pointStmt.Close()
	for _, p := range curve {
		if _, err := pointStmt.ExecContext(ctx, id, p.Date.Format("2006-01-02"), p.Equity, p.Return, p.Turnover, p.Ruined); err != nil {
			return 0, fmt.Errorf("inserting equity point: %w", err)
		}
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, date, asset, delta, notional, cost)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer tradeStmt.Close()
	for _, t := range trades {
		if _, err := tradeStmt.ExecContext(ctx, id, t.Date.Format("2006-01-02"), t.Asset, t.Delta, t.Notional, t.Cost); err != nil {
			return 0, fmt.Errorf("inserting trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetRun retrieves a single run summary by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, assets, start_date, end_date, initial_capital,
		       lookback_window, entry_zscore, exit_zscore, max_position_size,
		       transaction_cost, sharpe_ratio, max_drawdown, win_rate,
		       avg_turnover, total_return, final_equity, trade_count, ruined
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, assets, start_date, end_date, initial_capital,
		       lookback_window, entry_zscore, exit_zscore, max_position_size,
		       transaction_cost, sharpe_ratio, max_drawdown, win_rate,
		       avg_turnover, total_return, final_equity, trade_count, ruined
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetEquityCurve retrieves the stored equity curve for a run, in date order.
func (s *SQLiteStore) GetEquityCurve(ctx context.Context, id int64) (domain.EquityCurve, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, equity, daily_return, turnover, ruined
		FROM equity_points WHERE run_id = ? ORDER BY date`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var curve domain.EquityCurve
	for rows.Next() {
		var dateStr string
		var p domain.EquityPoint
		if err := rows.Scan(&dateStr, &p.Equity, &p.Return, &p.Turnover, &p.Ruined); err != nil {
			return nil, err
		}
		p.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, err
		}
		curve = append(curve, p)
	}
	return curve, rows.Err()
}

// GetTrades retrieves the stored trade log for a run, in date order.
func (s *SQLiteStore) GetTrades(ctx context.Context, id int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, asset, delta, notional, cost
		FROM trades WHERE run_id = ? ORDER BY date, asset`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var dateStr string
		var t domain.Trade
		if err := rows.Scan(&dateStr, &t.Asset, &t.Delta, &t.Notional, &t.Cost); err != nil {
			return nil, err
		}
		t.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*RunRecord, error) {
	var run RunRecord
	var createdAt, assets string
	var sharpe sql.NullFloat64
	if err := row.Scan(
		&run.ID, &createdAt, &assets, &run.StartDate, &run.EndDate,
		&run.InitialCapital, &run.LookbackWindow, &run.EntryZScore,
		&run.ExitZScore, &run.MaxPositionSize, &run.TransactionCost,
		&sharpe, &run.Report.MaxDrawdown, &run.Report.WinRate,
		&run.Report.AvgTurnover, &run.Report.TotalReturn,
		&run.Report.FinalEquity, &run.Report.TradeCount, &run.Ruined,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = t

	if assets != "" {
		run.Assets = strings.Split(assets, ",")
	}

	// A NULL Sharpe means the run had zero return variance.
	if sharpe.Valid {
		run.Report.SharpeRatio = sharpe.Float64
	} else {
		run.Report.SharpeRatio = math.NaN()
	}

	return &run, nil
}

// nullableFloat maps NaN and Inf to SQL NULL; SQLite has no representation
// for them.
func nullableFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
