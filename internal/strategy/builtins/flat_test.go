package builtins

import (
	"testing"

	"formosa/internal/indicator"
)

// flatBaseCloses holds at 10 long enough to warm a 10-session average,
// then jumps. The jump turns the 5/10 averages up while the short
// averages were flat (and equal) over the prior two sessions.
func flatBaseCloses() []float64 {
	return []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 20}
}

func TestFlatMAFiresOnBreakFromFlatBase(t *testing.T) {
	closes := flatBaseCloses()

	s := NewFlatMA(2, 3)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, s.Windows()...))
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1: %+v", len(signals), signals)
	}
	got := signals[0]
	if got.Index != 11 {
		t.Errorf("signal index = %d, want 11", got.Index)
	}
	if got.Strategy != "ma2-ma3-flat" {
		t.Errorf("strategy name = %q, want ma2-ma3-flat", got.Strategy)
	}
	if got.Close != 20 {
		t.Errorf("signal close = %v, want 20", got.Close)
	}
}

func TestFlatMARequiresUpturn(t *testing.T) {
	// Flat forever: the base never resolves, so no signal.
	closes := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10}

	s := NewFlatMA(2, 3)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, s.Windows()...))
	if len(signals) != 0 {
		t.Fatalf("flat series produced %d signals, want 0: %+v", len(signals), signals)
	}
}

func TestFlatMARequiresFlatBase(t *testing.T) {
	// Steadily rising: the 5/10 trend holds but no average ever sits
	// still.
	closes := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21}

	s := NewFlatMA(2, 3)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, s.Windows()...))
	if len(signals) != 0 {
		t.Fatalf("rising series produced %d signals, want 0: %+v", len(signals), signals)
	}
}

func TestEqMAFiresWhenAveragesConverge(t *testing.T) {
	// The flat base also pins the two averages onto each other for the
	// two sessions before the break.
	closes := flatBaseCloses()

	s := NewEqMA(2, 3)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, s.Windows()...))
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1: %+v", len(signals), signals)
	}
	got := signals[0]
	if got.Index != 11 {
		t.Errorf("signal index = %d, want 11", got.Index)
	}
	if got.Strategy != "ma2-eq-ma3-2d" {
		t.Errorf("strategy name = %q, want ma2-eq-ma3-2d", got.Strategy)
	}
}

func TestEqMARequiresEqualAverages(t *testing.T) {
	// A steady ramp keeps the short average strictly above the longer
	// one, so they never coincide.
	closes := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21}

	s := NewEqMA(2, 3)
	series := seriesFromCloses(closes)
	signals := s.Evaluate(series, indicator.Compute(series, s.Windows()...))
	if len(signals) != 0 {
		t.Fatalf("rising series produced %d signals, want 0: %+v", len(signals), signals)
	}
}

func TestFlatAndEqWindows(t *testing.T) {
	f := NewFlatMA(10, 20)
	if f.Name() != "ma10-ma20-flat" {
		t.Errorf("name = %q, want ma10-ma20-flat", f.Name())
	}
	if w := f.Windows(); len(w) != 4 || w[0] != 10 || w[1] != 20 || w[2] != 5 || w[3] != 10 {
		t.Errorf("windows = %v, want [10 20 5 10]", w)
	}

	e := NewEqMA(5, 20)
	if e.Name() != "ma5-eq-ma20-2d" {
		t.Errorf("name = %q, want ma5-eq-ma20-2d", e.Name())
	}
}
