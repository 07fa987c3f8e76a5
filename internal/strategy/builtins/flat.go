package builtins

import (
	"fmt"

	"formosa/internal/domain"
	"formosa/internal/indicator"
	"formosa/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*FlatMA)(nil)
var _ strategy.Strategy = (*EqMA)(nil)

// trendUp is the shared breakout condition of the base-pattern
// strategies: the 5- and 10-session averages both rise into the signal
// session. All four points must be defined.
func trendUp(ind *indicator.Set, i int) bool {
	ma5, prev5 := ind.At(5, i), ind.At(5, i-1)
	ma10, prev10 := ind.At(10, i), ind.At(10, i-1)
	if !domain.Valid(ma5) || !domain.Valid(prev5) || !domain.Valid(ma10) || !domain.Valid(prev10) {
		return false
	}
	return ma5 > prev5 && ma10 > prev10
}

// FlatMA fires when two moving averages each held perfectly flat over
// the two sessions before the signal day and the 5/10 averages turn up
// on it: a dormant base resolving upward.
type FlatMA struct {
	name string
	ma1  int
	ma2  int
}

// NewFlatMA creates a flat-base strategy over the given windows, named
// e.g. "ma5-ma10-flat".
func NewFlatMA(ma1, ma2 int) *FlatMA {
	return &FlatMA{
		name: fmt.Sprintf("ma%d-ma%d-flat", ma1, ma2),
		ma1:  ma1,
		ma2:  ma2,
	}
}

func (f *FlatMA) Name() string { return f.name }

func (f *FlatMA) Windows() []int { return []int{f.ma1, f.ma2, 5, 10} }

func (f *FlatMA) Evaluate(series []domain.Quote, ind *indicator.Set) []strategy.Signal {
	var signals []strategy.Signal
	for i := 3; i < len(series); i++ {
		if !flatAt(ind, f.ma1, f.ma2, i-1) || !flatAt(ind, f.ma1, f.ma2, i-2) {
			continue
		}
		if !trendUp(ind, i) {
			continue
		}
		signals = append(signals, strategy.Signal{
			Code:     series[i].Code,
			Name:     series[i].Name,
			Date:     series[i].Date,
			Strategy: f.name,
			Close:    series[i].Close,
			Index:    i,
		})
	}
	return signals
}

// flatAt reports whether both averages are unchanged from the prior
// session at index i. Undefined values are never flat.
func flatAt(ind *indicator.Set, ma1, ma2, i int) bool {
	a, aPrev := ind.At(ma1, i), ind.At(ma1, i-1)
	b, bPrev := ind.At(ma2, i), ind.At(ma2, i-1)
	if !domain.Valid(a) || !domain.Valid(aPrev) || !domain.Valid(b) || !domain.Valid(bPrev) {
		return false
	}
	return a == aPrev && b == bPrev
}

// EqMA fires when two moving averages sat exactly on top of each other
// for the two sessions before the signal day and the 5/10 averages turn
// up on it.
type EqMA struct {
	name string
	ma1  int
	ma2  int
}

// NewEqMA creates an equal-averages strategy over the given windows,
// named e.g. "ma5-eq-ma10-2d".
func NewEqMA(ma1, ma2 int) *EqMA {
	return &EqMA{
		name: fmt.Sprintf("ma%d-eq-ma%d-2d", ma1, ma2),
		ma1:  ma1,
		ma2:  ma2,
	}
}

func (e *EqMA) Name() string { return e.name }

func (e *EqMA) Windows() []int { return []int{e.ma1, e.ma2, 5, 10} }

func (e *EqMA) Evaluate(series []domain.Quote, ind *indicator.Set) []strategy.Signal {
	var signals []strategy.Signal
	for i := 2; i < len(series); i++ {
		if !equalAt(ind, e.ma1, e.ma2, i-1) || !equalAt(ind, e.ma1, e.ma2, i-2) {
			continue
		}
		if !trendUp(ind, i) {
			continue
		}
		signals = append(signals, strategy.Signal{
			Code:     series[i].Code,
			Name:     series[i].Name,
			Date:     series[i].Date,
			Strategy: e.name,
			Close:    series[i].Close,
			Index:    i,
		})
	}
	return signals
}

func equalAt(ind *indicator.Set, ma1, ma2, i int) bool {
	a, b := ind.At(ma1, i), ind.At(ma2, i)
	if !domain.Valid(a) || !domain.Valid(b) {
		return false
	}
	return a == b
}
