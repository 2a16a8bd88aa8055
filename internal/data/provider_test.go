package data

import (
	"context"
	"testing"
	"time"

	"meanrev/internal/domain"
	"meanrev/internal/store"
)

func bar(symbol string, day int, close float64) domain.Bar {
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:      close, High: close, Low: close, Close: close,
		Volume: 1000,
	}
}

func TestPanelFromBars(t *testing.T) {
	bars := map[string][]domain.Bar{
		"AAPL": {bar("AAPL", 2, 185), bar("AAPL", 3, 186), bar("AAPL", 4, 187)},
		"MSFT": {bar("MSFT", 2, 400), bar("MSFT", 4, 404)}, // no bar on the 3rd
	}

	panel, err := PanelFromBars(bars)
	if err != nil {
		t.Fatalf("PanelFromBars: %v", err)
	}

	if panel.Len() != 3 {
		t.Fatalf("panel has %d dates, want the union of 3", panel.Len())
	}
	if v, ok := panel.Price("AAPL", 1); !ok || v != 186 {
		t.Errorf("AAPL price day 2 = %v, %v, want 186, true", v, ok)
	}
	if _, ok := panel.Price("MSFT", 1); ok {
		t.Error("MSFT should have a gap on the middle date")
	}
	if v, ok := panel.Price("MSFT", 2); !ok || v != 404 {
		t.Errorf("MSFT price day 3 = %v, %v, want 404, true", v, ok)
	}
}

func TestPanelFromBarsEmpty(t *testing.T) {
	if _, err := PanelFromBars(map[string][]domain.Bar{}); err == nil {
		t.Error("PanelFromBars accepted an empty bar set")
	}
}

func TestPanelFromBarsNormalizesTimestamps(t *testing.T) {
	// Intraday timestamps collapse onto the trading date.
	bars := map[string][]domain.Bar{
		"AAPL": {{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC),
			Close:     185,
		}},
	}
	panel, err := PanelFromBars(bars)
	if err != nil {
		t.Fatalf("PanelFromBars: %v", err)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !panel.Date(0).Equal(want) {
		t.Errorf("panel date = %v, want %v", panel.Date(0), want)
	}
}

func TestCacheProvider(t *testing.T) {
	ctx := context.Background()
	ps := store.NewParquetStore(t.TempDir())

	bars := []domain.Bar{bar("AAPL", 2, 185), bar("AAPL", 3, 186)}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	p := NewCacheProvider(ps)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	panel, err := p.Panel(ctx, []string{"AAPL"}, start, end)
	if err != nil {
		t.Fatalf("Panel: %v", err)
	}
	if panel.Len() != 2 {
		t.Errorf("panel has %d dates, want 2", panel.Len())
	}

	// Uncached asset fails with a missing-data error.
	if _, err := p.Panel(ctx, []string{"AAPL", "TSLA"}, start, end); err == nil {
		t.Error("Panel succeeded for a symbol with no cached bars")
	}
}
