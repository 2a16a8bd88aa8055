// Command meanrev runs multi-asset mean-reversion backtests from a YAML
// configuration: fetch prices into the local cache, simulate, and report.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"meanrev/internal/backtest"
	"meanrev/internal/config"
	"meanrev/internal/data"
	"meanrev/internal/domain"
	"meanrev/internal/portfolio"
	"meanrev/internal/signal"
	"meanrev/internal/store"
	"meanrev/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: meanrev <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run        Run a backtest from the config file\n")
		fmt.Fprintf(os.Stderr, "  fetch      Fetch daily bars into the local cache\n")
		fmt.Fprintf(os.Stderr, "  runs       List stored backtest runs\n")
		fmt.Fprintf(os.Stderr, "  report     Re-print the metrics of a stored run\n")
		fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("meanrev %s\n", version)

	case "run":
		err = cmdRun(os.Args[2:])

	case "fetch":
		err = cmdFetch(os.Args[2:])

	case "runs":
		err = cmdRuns(os.Args[2:])

	case "report":
		err = cmdReport(os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration YAML file")
	source := fs.String("source", "cache", "price source: cache or alpaca")
	equityCSV := fs.String("export-equity", "", "write the equity curve CSV to this path")
	tradesCSV := fs.String("export-trades", "", "write the trade log CSV to this path")
	save := fs.Bool("save", false, "persist the run to the SQLite run store")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	b := cfg.Backtest
	start, _ := b.Start()
	end, _ := b.End()

	slog.Info("configuration loaded",
		"assets", b.Assets,
		"range", b.StartDate+".."+b.EndDate,
		"lookback", b.LookbackWindow,
		"entryZ", b.EntryZScore,
		"exitZ", b.ExitZScore,
		"maxPosition", b.MaxPositionSize,
		"transactionCost", b.TransactionCost)

	ctx := context.Background()

	var provider data.Provider
	switch *source {
	case "cache":
		provider = data.NewCacheProvider(store.NewParquetStore(cfg.Storage.DataDir))
	case "alpaca":
		provider = data.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, 200)
	default:
		return fmt.Errorf("unknown price source %q", *source)
	}

	panel, err := provider.Panel(ctx, b.Assets, start, end)
	if err != nil {
		return fmt.Errorf("building price panel: %w", err)
	}
	panel = panel.ForwardFill()

	slog.Info("price panel ready",
		"source", provider.Name(),
		"dates", panel.Len(),
		"assets", panel.Assets())

	registry := signal.NewRegistry()
	registry.Register(signal.NewMeanReversion(b.LookbackWindow, b.EntryZScore, b.ExitZScore))
	gen, _ := registry.Get("mean-reversion")

	signals, err := gen.Signals(panel)
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientHistory) {
			return fmt.Errorf("generating signals: %w", err)
		}
		slog.Warn("some assets lack history and stay flat", "err", err)
	}
	slog.Info("signals generated",
		"generator", gen.Name(),
		"activeStates", countActiveStates(signals))

	weights, err := portfolio.Build(signals, b.MaxPositionSize)
	if err != nil {
		return fmt.Errorf("building weights: %w", err)
	}
	slog.Info("target weights built",
		"maxPosition", b.MaxPositionSize,
		"maxGrossExposure", maxGrossExposure(weights, panel.Assets()))

	gapPolicy, _ := domain.ParseGapPolicy(b.GapPolicy)
	sim := backtest.NewSimulator(backtest.Config{
		InitialCapital:  b.InitialCapital,
		TransactionCost: b.TransactionCost,
		GapPolicy:       gapPolicy,
	})
	result, err := sim.Run(panel, weights)
	if err != nil {
		return fmt.Errorf("simulating: %w", err)
	}

	report, err := backtest.ComputeMetrics(result.Curve, len(result.Trades))
	if err != nil {
		return fmt.Errorf("computing metrics: %w", err)
	}

	printReport(report, result.Ruined)

	if *equityCSV != "" {
		if err := backtest.WriteEquityCSV(*equityCSV, result.Curve); err != nil {
			return fmt.Errorf("exporting equity curve: %w", err)
		}
		slog.Info("equity curve exported", "path", *equityCSV)
	}
	if *tradesCSV != "" {
		if err := backtest.WriteTradesCSV(*tradesCSV, result.Trades); err != nil {
			return fmt.Errorf("exporting trades: %w", err)
		}
		slog.Info("trade log exported", "path", *tradesCSV)
	}

	if *save {
		runStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening run store: %w", err)
		}
		defer runStore.Close()

		id, err := runStore.SaveRun(ctx, &store.RunRecord{
			CreatedAt:       time.Now().UTC(),
			Assets:          b.Assets,
			StartDate:       b.StartDate,
			EndDate:         b.EndDate,
			InitialCapital:  b.InitialCapital,
			LookbackWindow:  b.LookbackWindow,
			EntryZScore:     b.EntryZScore,
			ExitZScore:      b.ExitZScore,
			MaxPositionSize: b.MaxPositionSize,
			TransactionCost: b.TransactionCost,
			Report:          *report,
			Ruined:          result.Ruined,
		}, result.Curve, result.Trades)
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		slog.Info("run saved", "id", id)
	}

	return nil
}

// countActiveStates counts the non-flat asset-date entries in the matrix.
func countActiveStates(signals *domain.SignalMatrix) int {
	active := 0
	for _, states := range signals.States {
		for _, s := range states {
			if s != domain.Flat {
				active++
			}
		}
	}
	return active
}

// maxGrossExposure returns the largest per-date sum of absolute target
// weights across the run.
func maxGrossExposure(weights *domain.WeightMatrix, assets []string) float64 {
	maxGross := 0.0
	for i := range weights.Dates {
		gross := 0.0
		for _, asset := range assets {
			gross += math.Abs(weights.At(asset, i))
		}
		if gross > maxGross {
			maxGross = gross
		}
	}
	return maxGross
}

func printReport(r *domain.MetricsReport, ruined bool) {
	fmt.Println()
	fmt.Println("Performance Metrics")
	fmt.Println("-------------------")
	fmt.Printf("  %-16s %s\n", "sharpe_ratio", fmtSharpe(r.SharpeRatio))
	fmt.Printf("  %-16s %.2f%%\n", "max_drawdown", 100*r.MaxDrawdown)
	fmt.Printf("  %-16s %.2f%%\n", "win_rate", 100*r.WinRate)
	fmt.Printf("  %-16s %.5f\n", "avg_turnover", r.AvgTurnover)
	fmt.Printf("  %-16s %.2f%%\n", "total_return", 100*r.TotalReturn)
	fmt.Printf("  %-16s %.2f\n", "final_equity", r.FinalEquity)
	fmt.Printf("  %-16s %d\n", "trades", r.TradeCount)
	if ruined {
		fmt.Println("\n  NOTE: equity hit the ruin floor; trading froze before the end date.")
	}
	fmt.Println()
}

func fmtSharpe(v float64) string {
	if math.IsNaN(v) {
		return "n/a (zero return variance)"
	}
	return fmt.Sprintf("%.3f", v)
}

func cmdFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration YAML file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	b := cfg.Backtest
	start, _ := b.Start()
	end, _ := b.End()

	provider := data.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, 200)
	fetcher := data.NewFetcher(provider, store.NewParquetStore(cfg.Storage.DataDir))

	return fetcher.Run(context.Background(), b.Assets, start, end)
}

func cmdReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration YAML file")
	id := fs.Int64("id", 0, "stored run ID to report")
	equityCSV := fs.String("export-equity", "", "write the stored equity curve CSV to this path")
	tradesCSV := fs.String("export-trades", "", "write the stored trade log CSV to this path")
	fs.Parse(args)

	if *id <= 0 {
		return fmt.Errorf("report: -id is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	runStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer runStore.Close()

	ctx := context.Background()

	run, err := runStore.GetRun(ctx, *id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("report: run %d not found", *id)
		}
		return fmt.Errorf("loading run %d: %w", *id, err)
	}

	fmt.Printf("\nRun %d  created %s\n", run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  %-16s %s\n", "assets", strings.Join(run.Assets, ","))
	fmt.Printf("  %-16s %s\n", "range", run.StartDate+".."+run.EndDate)
	printReport(&run.Report, run.Ruined)

	if *equityCSV != "" {
		curve, err := runStore.GetEquityCurve(ctx, *id)
		if err != nil {
			return fmt.Errorf("loading equity curve for run %d: %w", *id, err)
		}
		if err := backtest.WriteEquityCSV(*equityCSV, curve); err != nil {
			return fmt.Errorf("exporting equity curve: %w", err)
		}
		slog.Info("equity curve exported", "path", *equityCSV)
	}
	if *tradesCSV != "" {
		trades, err := runStore.GetTrades(ctx, *id)
		if err != nil {
			return fmt.Errorf("loading trades for run %d: %w", *id, err)
		}
		if err := backtest.WriteTradesCSV(*tradesCSV, trades); err != nil {
			return fmt.Errorf("exporting trades: %w", err)
		}
		slog.Info("trade log exported", "path", *tradesCSV)
	}

	return nil
}

func cmdRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration YAML file")
	limit := fs.Int("limit", 20, "maximum number of runs to list")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	runStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer runStore.Close()

	runs, err := runStore.ListRuns(context.Background(), *limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("no stored runs")
		return nil
	}

	fmt.Printf("%-5s %-20s %-24s %-10s %-9s %-9s %s\n",
		"ID", "CREATED", "RANGE", "SHARPE", "MAXDD", "WINRATE", "FINAL")
	for _, r := range runs {
		fmt.Printf("%-5d %-20s %-24s %-10s %-9s %-9s %.2f\n",
			r.ID,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.StartDate+".."+r.EndDate,
			fmtSharpe(r.Report.SharpeRatio),
			fmt.Sprintf("%.2f%%", 100*r.Report.MaxDrawdown),
			fmt.Sprintf("%.2f%%", 100*r.Report.WinRate),
			r.Report.FinalEquity)
	}
	return nil
}
