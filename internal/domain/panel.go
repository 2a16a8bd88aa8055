package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PricePanel is a date-indexed, asset-keyed table of prices. It is built once
// by a data provider and read-only afterwards; every downstream matrix
// (signals, weights) is a separate owned structure. A NaN entry marks a
// missing observation.
type PricePanel struct {
	dates  []time.Time
	assets []string
	prices map[string][]float64
}

// NewPricePanel validates and assembles a panel. Dates must be strictly
// increasing; every series must have one entry per date; present (non-NaN)
// prices must be finite and positive.
func NewPricePanel(dates []time.Time, series map[string][]float64) (*PricePanel, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("price panel: no dates")
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("price panel: no assets")
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("price panel: dates not strictly increasing at index %d (%s)", i, dates[i].Format("2006-01-02"))
		}
	}

	assets := make([]string, 0, len(series))
	prices := make(map[string][]float64, len(series))
	for asset, s := range series {
		if len(s) != len(dates) {
			return nil, fmt.Errorf("price panel: asset %s has %d prices for %d dates", asset, len(s), len(dates))
		}
		for i, p := range s {
			if math.IsNaN(p) {
				continue // gap
			}
			if math.IsInf(p, 0) || p <= 0 {
				return nil, fmt.Errorf("price panel: asset %s has invalid price %v on %s", asset, p, dates[i].Format("2006-01-02"))
			}
		}
		assets = append(assets, asset)
		cp := make([]float64, len(s))
		copy(cp, s)
		prices[asset] = cp
	}
	sort.Strings(assets)

	cpDates := make([]time.Time, len(dates))
	copy(cpDates, dates)

	return &PricePanel{dates: cpDates, assets: assets, prices: prices}, nil
}

// Len returns the number of dates in the panel.
func (p *PricePanel) Len() int { return len(p.dates) }

// Dates returns the panel's date index. Callers must not modify it.
func (p *PricePanel) Dates() []time.Time { return p.dates }

// Date returns the date at index i.
func (p *PricePanel) Date(i int) time.Time { return p.dates[i] }

// Assets returns the panel's asset identifiers in sorted order. Callers must
// not modify it.
func (p *PricePanel) Assets() []string { return p.assets }

// Price returns the price for asset at date index i. The second return value
// is false when the observation is missing or the asset is unknown.
func (p *PricePanel) Price(asset string, i int) (float64, bool) {
	s, ok := p.prices[asset]
	if !ok || i < 0 || i >= len(s) {
		return 0, false
	}
	if math.IsNaN(s[i]) {
		return 0, false
	}
	return s[i], true
}

// Series returns the full price series for an asset, NaN where missing.
// Callers must not modify it.
func (p *PricePanel) Series(asset string) ([]float64, bool) {
	s, ok := p.prices[asset]
	return s, ok
}

// ForwardFill returns a new panel with each asset's gaps filled forward from
// the last observation, and leading gaps filled backward from the first one.
// This mirrors the standard preprocessing for daily close panels with
// holidays or late listings.
func (p *PricePanel) ForwardFill() *PricePanel {
	filled := make(map[string][]float64, len(p.prices))
	for asset, s := range p.prices {
		cp := make([]float64, len(s))
		copy(cp, s)
		last := math.NaN()
		for i := range cp {
			if math.IsNaN(cp[i]) {
				cp[i] = last
			} else {
				last = cp[i]
			}
		}
		next := math.NaN()
		for i := len(cp) - 1; i >= 0; i-- {
			if math.IsNaN(cp[i]) {
				cp[i] = next
			} else {
				next = cp[i]
			}
		}
		filled[asset] = cp
	}
	return &PricePanel{dates: p.dates, assets: p.assets, prices: filled}
}

// Slice returns a new panel restricted to dates within [start, end]
// inclusive. The underlying series are shared; panels are read-only.
func (p *PricePanel) Slice(start, end time.Time) (*PricePanel, error) {
	lo := sort.Search(len(p.dates), func(i int) bool { return !p.dates[i].Before(start) })
	hi := sort.Search(len(p.dates), func(i int) bool { return p.dates[i].After(end) })
	if lo >= hi {
		return nil, fmt.Errorf("price panel: no dates in range %s..%s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	prices := make(map[string][]float64, len(p.prices))
	for asset, s := range p.prices {
		prices[asset] = s[lo:hi]
	}
	return &PricePanel{dates: p.dates[lo:hi], assets: p.assets, prices: prices}, nil
}
