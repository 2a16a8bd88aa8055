package data

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"meanrev/internal/domain"
	"meanrev/internal/store"
	"meanrev/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches split- and dividend-adjusted daily bars from the
// Alpaca market-data API.
type AlpacaProvider struct {
	client  *marketdata.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// rateLimitPerMin bounds outbound API calls; 200 matches Alpaca's free tier.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string, rateLimitPerMin int) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &AlpacaProvider{
		client:  marketdata.NewClient(opts),
		limiter: util.NewRateLimiter(rateLimitPerMin),
		log:     slog.Default().With("provider", "alpaca"),
	}
}

// Name returns "alpaca".
func (p *AlpacaProvider) Name() string { return "alpaca" }

// Panel fetches daily bars for all assets and assembles them into a panel.
func (p *AlpacaProvider) Panel(ctx context.Context, assets []string, start, end time.Time) (*domain.PricePanel, error) {
	bars, err := p.FetchBars(ctx, assets, start, end)
	if err != nil {
		return nil, err
	}
	return PanelFromBars(bars)
}

// FetchBars retrieves adjusted daily bars grouped by symbol, retrying
// transient API failures with backoff.
func (p *AlpacaProvider) FetchBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, 5, time.Second, func() error {
		var ferr error
		multiBars, ferr = p.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Start:      start,
			End:        end,
			Adjustment: marketdata.All,
			Feed:       "sip",
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	out := make(map[string][]domain.Bar, len(multiBars))
	total := 0
	for symbol, alpacaBars := range multiBars {
		sym := strings.ToUpper(symbol)
		for _, ab := range alpacaBars {
			out[sym] = append(out[sym], domain.Bar{
				Symbol:    sym,
				Timestamp: ab.Timestamp,
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    int64(ab.Volume),
			})
		}
		total += len(alpacaBars)
	}

	p.log.Info("fetched daily bars",
		"symbols", len(out),
		"bars", total,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"))

	return out, nil
}

// Fetcher primes the local Parquet cache from the Alpaca API so later
// backtests can run offline against the CacheProvider.
type Fetcher struct {
	provider *AlpacaProvider
	store    store.BarStore
	log      *slog.Logger
}

// NewFetcher creates a Fetcher writing through to the given bar store.
func NewFetcher(provider *AlpacaProvider, s store.BarStore) *Fetcher {
	return &Fetcher{
		provider: provider,
		store:    s,
		log:      slog.Default().With("component", "fetcher"),
	}
}

// Run fetches bars for the given symbols and persists them to the cache.
// Writes are idempotent: re-running over an overlapping range merges.
func (f *Fetcher) Run(ctx context.Context, symbols []string, start, end time.Time) error {
	barsBySymbol, err := f.provider.FetchBars(ctx, symbols, start, end)
	if err != nil {
		return err
	}

	for _, symbol := range symbols {
		bars, ok := barsBySymbol[strings.ToUpper(symbol)]
		if !ok {
			f.log.Warn("no bars returned for symbol", "symbol", symbol)
			continue
		}
		if err := f.store.WriteBars(ctx, bars); err != nil {
			return fmt.Errorf("caching bars for %s: %w", symbol, err)
		}
		f.log.Info("cached bars", "symbol", symbol, "count", len(bars))
	}
	return nil
}
