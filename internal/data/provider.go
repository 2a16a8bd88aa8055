// Package data acquires historical price panels for the backtester, either
// from the Alpaca market-data API or from the local Parquet cache.
package data

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"meanrev/internal/domain"
	"meanrev/internal/store"
)

// Provider supplies a price panel for a set of assets over a date range.
type Provider interface {
	// Name returns the provider identifier (e.g. "alpaca", "cache").
	Name() string

	// Panel returns the raw (unfilled) price panel. Dates with no
	// observation for an asset come back as gaps; callers decide whether to
	// forward-fill.
	Panel(ctx context.Context, assets []string, start, end time.Time) (*domain.PricePanel, error)
}

// PanelFromBars assembles a panel from per-symbol daily bars using closing
// prices. The date index is the union of all bar dates; symbols without a
// bar on a given date get a gap.
func PanelFromBars(barsBySymbol map[string][]domain.Bar) (*domain.PricePanel, error) {
	dateSet := make(map[time.Time]struct{})
	for _, bars := range barsBySymbol {
		for _, b := range bars {
			dateSet[midnight(b.Timestamp)] = struct{}{}
		}
	}
	if len(dateSet) == 0 {
		return nil, fmt.Errorf("no bars to assemble a panel from")
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	series := make(map[string][]float64, len(barsBySymbol))
	for symbol, bars := range barsBySymbol {
		s := make([]float64, len(dates))
		for i := range s {
			s[i] = math.NaN()
		}
		for _, b := range bars {
			s[index[midnight(b.Timestamp)]] = b.Close
		}
		series[symbol] = s
	}

	return domain.NewPricePanel(dates, series)
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Compile-time interface check.
var _ Provider = (*CacheProvider)(nil)

// CacheProvider reads panels from the local Parquet bar cache, so repeated
// backtests over the same history never touch the network.
type CacheProvider struct {
	bars store.BarStore
}

// NewCacheProvider creates a CacheProvider reading from the given store.
func NewCacheProvider(bars store.BarStore) *CacheProvider {
	return &CacheProvider{bars: bars}
}

// Name returns "cache".
func (p *CacheProvider) Name() string { return "cache" }

// Panel reads each asset's cached bars and assembles them into a panel.
// Assets with no cached bars at all are an error: the cache must be primed
// with a fetch first.
func (p *CacheProvider) Panel(ctx context.Context, assets []string, start, end time.Time) (*domain.PricePanel, error) {
	barsBySymbol := make(map[string][]domain.Bar, len(assets))
	for _, asset := range assets {
		bars, err := p.bars.ReadBars(ctx, asset, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading cached bars for %s: %w", asset, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("%w: no cached bars for %s in %s..%s (run fetch first)",
				domain.ErrMissingPrice, asset, start.Format("2006-01-02"), end.Format("2006-01-02"))
		}
		barsBySymbol[asset] = bars
	}
	return PanelFromBars(barsBySymbol)
}
