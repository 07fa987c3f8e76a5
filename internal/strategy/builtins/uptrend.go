package builtins

import (
	"fmt"

	"formosa/internal/domain"
	"formosa/internal/indicator"
	"formosa/internal/strategy"
)

// Uptrend fires when the close settles strictly above a rising long
// moving average. Each qualifying run produces one signal at its first
// session; later sessions inside the same run stay silent until the
// condition breaks.
type Uptrend struct {
	name   string
	window int
}

// NewUptrend creates a long-term uptrend strategy over the given window,
// named e.g. "uptrend-ma60".
func NewUptrend(window int) *Uptrend {
	return &Uptrend{
		name:   fmt.Sprintf("uptrend-ma%d", window),
		window: window,
	}
}

func (u *Uptrend) Name() string { return u.name }

func (u *Uptrend) Windows() []int { return []int{u.window} }

// Evaluate walks the series tracking whether the close is inside a
// qualifying run. Equality ends a run without starting one.
func (u *Uptrend) Evaluate(series []domain.Quote, ind *indicator.Set) []strategy.Signal {
	var signals []strategy.Signal
	inRun := false
	for i := 1; i < len(series); i++ {
		ma := ind.At(u.window, i)
		prevMA := ind.At(u.window, i-1)
		close := series[i].Close
		if !domain.Valid(ma) || !domain.Valid(prevMA) || !domain.Valid(close) {
			inRun = false
			continue
		}
		if close > ma && ma > prevMA {
			if !inRun {
				signals = append(signals, strategy.Signal{
					Code:     series[i].Code,
					Name:     series[i].Name,
					Date:     series[i].Date,
					Strategy: u.name,
					Close:    close,
					Index:    i,
				})
			}
			inRun = true
		} else {
			inRun = false
		}
	}
	return signals
}
