// Package builtins provides the built-in strategy implementations.
package builtins

import (
	"fmt"

	"formosa/internal/domain"
	"formosa/internal/indicator"
	"formosa/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*Cross)(nil)
var _ strategy.Strategy = (*Uptrend)(nil)

// Cross fires when the short moving average crosses strictly above the
// long one: short <= long on the previous session and short > long on
// the signal session. Touching without crossing is not a signal.
type Cross struct {
	name  string
	short int
	long  int
}

// NewSMACross creates a short-over-long crossover strategy named after
// its windows, e.g. "ma5-cross-ma10".
func NewSMACross(short, long int) *Cross {
	return &Cross{
		name:  fmt.Sprintf("ma%d-cross-ma%d", short, long),
		short: short,
		long:  long,
	}
}

// NewGoldenCross is the conventional 50-over-200 crossover with caller
// supplied windows.
func NewGoldenCross(short, long int) *Cross {
	return &Cross{
		name:  fmt.Sprintf("golden-cross-%d-%d", short, long),
		short: short,
		long:  long,
	}
}

func (c *Cross) Name() string { return c.name }

func (c *Cross) Windows() []int { return []int{c.short, c.long} }

// Evaluate scans for strict upward crossings. All four moving-average
// points must be defined; a crossing out of a warmup gap never fires.
func (c *Cross) Evaluate(series []domain.Quote, ind *indicator.Set) []strategy.Signal {
	var signals []strategy.Signal
	for i := 1; i < len(series); i++ {
		prevShort := ind.At(c.short, i-1)
		prevLong := ind.At(c.long, i-1)
		curShort := ind.At(c.short, i)
		curLong := ind.At(c.long, i)
		if !domain.Valid(prevShort) || !domain.Valid(prevLong) || !domain.Valid(curShort) || !domain.Valid(curLong) {
			continue
		}
		if prevShort <= prevLong && curShort > curLong {
			signals = append(signals, strategy.Signal{
				Code:     series[i].Code,
				Name:     series[i].Name,
				Date:     series[i].Date,
				Strategy: c.name,
				Close:    series[i].Close,
				Index:    i,
			})
		}
	}
	return signals
}
