// Package indicator computes rolling technical indicators over daily
// close series. Positions before a window has filled are NaN, never
// zero: a zero would read as a real price.
package indicator

import (
	"math"

	"formosa/internal/domain"
)

// Set bundles the closes of one instrument with its computed moving
// averages, keyed by window length. All slices share the input length.
type Set struct {
	Closes []float64
	MA     map[int][]float64
}

// At returns the moving-average value for the given window at index i,
// or NaN when the window was not computed or has not filled yet.
func (s *Set) At(window, i int) float64 {
	ma, ok := s.MA[window]
	if !ok || i < 0 || i >= len(ma) {
		return math.NaN()
	}
	return ma[i]
}

// Compute extracts the close series from quotes and computes its moving
// averages for every requested window.
func Compute(series []domain.Quote, windows ...int) *Set {
	closes := domain.Closes(series)
	return &Set{
		Closes: closes,
		MA:     MovingAverages(closes, windows...),
	}
}

// MovingAverages computes one simple moving average per window over a
// single shared prefix-sum pass. Element i of window w averages
// values[i-w+1..i] when the window has filled and contains no gaps;
// otherwise it is NaN. Duplicate windows collapse.
func MovingAverages(values []float64, windows ...int) map[int][]float64 {
	n := len(values)

	// sums[i] holds the total of values[0..i-1] with NaNs skipped;
	// gaps[i] counts the NaNs among them.
	sums := make([]float64, n+1)
	gaps := make([]int, n+1)
	for i, v := range values {
		sums[i+1] = sums[i]
		gaps[i+1] = gaps[i]
		if math.IsNaN(v) {
			gaps[i+1]++
		} else {
			sums[i+1] += v
		}
	}

	out := make(map[int][]float64, len(windows))
	for _, w := range windows {
		if _, done := out[w]; done {
			continue
		}
		ma := make([]float64, n)
		for i := range ma {
			if w <= 0 || i < w-1 || gaps[i+1]-gaps[i+1-w] > 0 {
				ma[i] = math.NaN()
				continue
			}
			ma[i] = (sums[i+1] - sums[i+1-w]) / float64(w)
		}
		out[w] = ma
	}
	return out
}

// SMA computes a single w-period simple moving average.
func SMA(values []float64, w int) []float64 {
	return MovingAverages(values, w)[w]
}
