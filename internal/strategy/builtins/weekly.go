package builtins

import (
	"strconv"
	"strings"

	"formosa/internal/domain"
	"formosa/internal/indicator"
	"formosa/internal/strategy"
)

var _ strategy.Strategy = (*WeeklySequence)(nil)

// WeeklySequence fires when the moving averages of consecutive weekly
// bars line up in a prescribed strict order, one ordering per week, and
// the 5/10 averages rise into the signal bar. It is meant to run over a
// series resampled with domain.ResampleWeekly, where a rearrangement of
// the 5/10/20/60 stack marks a regime change.
type WeeklySequence struct {
	name string
	// seqs holds one ordering per bar, oldest first; the last entry
	// applies to the signal bar.
	seqs [][]int
}

// NewWeeklySequence matches one ordering on the bar before the signal
// and another on the signal bar itself.
func NewWeeklySequence(prev, curr []int) *WeeklySequence {
	return newSequence(prev, curr)
}

// NewThreeWeekSequence matches orderings on the signal bar and the two
// bars before it.
func NewThreeWeekSequence(first, second, third []int) *WeeklySequence {
	return newSequence(first, second, third)
}

func newSequence(seqs ...[]int) *WeeklySequence {
	parts := make([]string, len(seqs))
	for i, seq := range seqs {
		elems := make([]string, len(seq))
		for j, w := range seq {
			elems[j] = strconv.Itoa(w)
		}
		parts[i] = strings.Join(elems, ".")
	}
	return &WeeklySequence{
		name: "wkseq-" + strings.Join(parts, "-"),
		seqs: seqs,
	}
}

func (ws *WeeklySequence) Name() string { return ws.name }

func (ws *WeeklySequence) Windows() []int {
	seen := make(map[int]struct{})
	windows := []int{5, 10}
	seen[5], seen[10] = struct{}{}, struct{}{}
	for _, seq := range ws.seqs {
		for _, w := range seq {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			windows = append(windows, w)
		}
	}
	return windows
}

func (ws *WeeklySequence) Evaluate(series []domain.Quote, ind *indicator.Set) []strategy.Signal {
	var signals []strategy.Signal
	for i := len(ws.seqs) - 1; i < len(series); i++ {
		ok := true
		for k, seq := range ws.seqs {
			offset := len(ws.seqs) - 1 - k
			if !orderedAt(ind, seq, i-offset) {
				ok = false
				break
			}
		}
		if !ok || !trendUp(ind, i) {
			continue
		}
		signals = append(signals, strategy.Signal{
			Code:     series[i].Code,
			Name:     series[i].Name,
			Date:     series[i].Date,
			Strategy: ws.name,
			Close:    series[i].Close,
			Index:    i,
		})
	}
	return signals
}

// orderedAt reports whether the averages at index i hold the strict
// descending order the sequence prescribes. Undefined values never
// satisfy an ordering.
func orderedAt(ind *indicator.Set, seq []int, i int) bool {
	for k := 0; k+1 < len(seq); k++ {
		a, b := ind.At(seq[k], i), ind.At(seq[k+1], i)
		if !domain.Valid(a) || !domain.Valid(b) || a <= b {
			return false
		}
	}
	return true
}
