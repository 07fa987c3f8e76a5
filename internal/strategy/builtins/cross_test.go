package builtins

import (
	"testing"
	"time"

	"formosa/internal/domain"
	"formosa/internal/indicator"
)

func seriesFromCloses(closes []float64) []domain.Quote {
	series := make([]domain.Quote, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		series[i] = domain.Quote{
			Date:  base.AddDate(0, 0, i),
			Code:  "2330",
			Name:  "台積電",
			Close: c,
		}
	}
	return series
}

func TestCrossFiresOnStrictCrossover(t *testing.T) {
	// Flat at 10 long enough to warm both windows, then a jump pulls the
	// short average above the long one.
	closes := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 20, 20, 20}

	s := NewSMACross(2, 4)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, 2, 4))
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1: %+v", len(signals), signals)
	}
	got := signals[0]
	// Index 11 is the first day where ma2 (15) exceeds ma4 (12.5) after
	// equality the day before.
	if got.Index != 11 {
		t.Errorf("signal index = %d, want 11", got.Index)
	}
	if got.Strategy != "ma2-cross-ma4" {
		t.Errorf("strategy name = %q, want ma2-cross-ma4", got.Strategy)
	}
	if got.Close != 20 {
		t.Errorf("signal close = %v, want 20", got.Close)
	}
	if got.Code != "2330" {
		t.Errorf("signal code = %q, want 2330", got.Code)
	}
}

func TestCrossEqualityIsNotASignal(t *testing.T) {
	// Averages meet exactly but never strictly cross.
	closes := []float64{10, 10, 10, 10, 10, 10, 10, 10}

	s := NewSMACross(2, 4)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, 2, 4))
	if len(signals) != 0 {
		t.Fatalf("flat series produced %d signals, want 0", len(signals))
	}
}

func TestCrossNeverFiresDuringWarmup(t *testing.T) {
	// Rising from the start: the short average exceeds the long one on the
	// first day both are defined, but there is no prior defined day to
	// cross from until one session later.
	closes := []float64{10, 11, 12, 13, 14, 15}

	s := NewSMACross(2, 4)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, 2, 4))
	for _, sig := range signals {
		if sig.Index < 4 {
			t.Errorf("signal at index %d inside warmup", sig.Index)
		}
	}
}

func TestGoldenCrossName(t *testing.T) {
	s := NewGoldenCross(50, 200)
	if s.Name() != "golden-cross-50-200" {
		t.Errorf("name = %q, want golden-cross-50-200", s.Name())
	}
	w := s.Windows()
	if len(w) != 2 || w[0] != 50 || w[1] != 200 {
		t.Errorf("windows = %v, want [50 200]", w)
	}
}

func TestUptrendFiresOncePerRun(t *testing.T) {
	// Warm a 3-day average, rise above it for several sessions, dip back,
	// then rise again. Each run yields exactly one signal.
	closes := []float64{10, 10, 10, 15, 16, 17, 5, 5, 5, 12, 13}

	s := NewUptrend(3)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, 3))
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want 2 (one per run): %+v", len(signals), signals)
	}
	if signals[0].Index != 3 {
		t.Errorf("first run signal index = %d, want 3", signals[0].Index)
	}
	if signals[1].Index != 9 {
		t.Errorf("second run signal index = %d, want 9", signals[1].Index)
	}
	if signals[0].Strategy != "uptrend-ma3" {
		t.Errorf("strategy name = %q, want uptrend-ma3", signals[0].Strategy)
	}
}

func TestUptrendRequiresRisingAverage(t *testing.T) {
	// The close pops above the average while the average itself is still
	// falling; that is a bounce, not an uptrend.
	closes := []float64{30, 30, 30, 10, 25}

	s := NewUptrend(3)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, 3))
	if len(signals) != 0 {
		t.Fatalf("falling average produced %d signals, want 0: %+v", len(signals), signals)
	}
}

func TestUptrendEqualityEndsRunWithoutSignal(t *testing.T) {
	// Close equal to the average is never a signal.
	closes := []float64{10, 10, 10, 10, 10, 10}

	s := NewUptrend(3)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, 3))
	if len(signals) != 0 {
		t.Fatalf("flat series produced %d signals, want 0", len(signals))
	}
}
