package ingest

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"formosa/internal/indicator"
	"formosa/internal/store"
)

// Three sessions flow fetch → store → series → indicator, then the same
// range is synced again to confirm nothing duplicates.
func TestSyncEndToEnd(t *testing.T) {
	ctx := context.Background()
	cal, fetcher, _ := threeDaySetup()

	qs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "quotes.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer qs.Close()

	s := NewSyncer(Config{Fetcher: fetcher, Calendar: cal, Store: qs, Workers: 2})
	res, err := s.Sync(ctx, mkDay("2024-03-13"), mkDay("2024-03-15"), Options{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Succeeded != 3 {
		t.Fatalf("succeeded = %d, want 3", res.Succeeded)
	}

	series, err := qs.ReadSeries(ctx, "2330", mkDay("2024-03-13"), mkDay("2024-03-15"))
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("series length = %d, want 3", len(series))
	}

	// Closes are 10, 11, 9; the 2-day average is undefined on day one.
	ma := indicator.SMA([]float64{series[0].Close, series[1].Close, series[2].Close}, 2)
	if !math.IsNaN(ma[0]) {
		t.Errorf("ma2[0] = %v, want NaN", ma[0])
	}
	if math.Abs(ma[1]-10.5) > 1e-9 {
		t.Errorf("ma2[1] = %v, want 10.5", ma[1])
	}
	if math.Abs(ma[2]-10.0) > 1e-9 {
		t.Errorf("ma2[2] = %v, want 10.0", ma[2])
	}

	// A forced re-sync of the same range replaces rows, never duplicates.
	res, err = s.Sync(ctx, mkDay("2024-03-13"), mkDay("2024-03-15"), Options{Force: true})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if res.Succeeded != 3 {
		t.Fatalf("second sync succeeded = %d, want 3", res.Succeeded)
	}
	series, err = qs.ReadSeries(ctx, "2330", mkDay("2024-03-13"), mkDay("2024-03-15"))
	if err != nil {
		t.Fatalf("ReadSeries after re-sync: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("series length after re-sync = %d, want 3", len(series))
	}
}
