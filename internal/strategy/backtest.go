package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"formosa/internal/domain"
	"formosa/internal/indicator"
	"formosa/internal/store"
)

// RunRequest describes one backtest run.
type RunRequest struct {
	// Strategies names the registered strategies to evaluate. Empty means
	// every registered strategy.
	Strategies []string
	// Codes restricts the run to specific instruments. Empty means every
	// code in the store.
	Codes []string
	// Start and End bound the signal dates reported. History before Start
	// is still read so indicators are warm on the first reported day.
	Start, End time.Time
	// Horizons are the forward-return distances in sessions. Empty uses
	// DefaultHorizons.
	Horizons []int
	// LookbackDays is the calendar span read before Start for indicator
	// warmup.
	LookbackDays int
	// Weekly resamples each series to one bar per ISO week before
	// evaluating; horizons then measure weeks, not sessions.
	Weekly bool
	// Workers caps concurrent per-instrument evaluations.
	Workers int
	// Progress, when set, is called after each instrument completes.
	Progress func(code string, processed, total int)
}

// DefaultHorizons are the forward-return distances used when a run does
// not specify its own.
var DefaultHorizons = []int{5, 10, 20, 60}

// Result pairs one signal with its realized forward returns. Horizons
// reaching past the end of the series are absent from Returns, not zero.
type Result struct {
	Signal
	Returns map[int]float64
}

// Backtester evaluates registered strategies over stored quote series.
type Backtester struct {
	store    store.QuoteStore
	registry *Registry
	log      *slog.Logger
}

// NewBacktester creates a Backtester reading from the given store and
// resolving strategies in the provided registry.
func NewBacktester(qs store.QuoteStore, registry *Registry, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{
		store:    qs,
		registry: registry,
		log:      logger.With("component", "backtest"),
	}
}

// Run evaluates the requested strategies over every requested instrument
// and returns all signals inside [Start, End] with their forward
// returns, ordered by code, date, then strategy name.
func (bt *Backtester) Run(ctx context.Context, req RunRequest) ([]Result, error) {
	strategies, err := bt.resolve(req.Strategies)
	if err != nil {
		return nil, err
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("no strategies registered")
	}

	codes := req.Codes
	if len(codes) == 0 {
		codes, err = bt.store.ListCodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing codes: %w", err)
		}
	}

	horizons := req.Horizons
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}

	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = 400
		// Weekly bars need a deeper read: a 60-bar average spans more
		// than a year of sessions.
		if req.Weekly {
			lookback = 600
		}
	}
	readStart := req.Start.AddDate(0, 0, -lookback)

	// One window list shared by all strategies in the run.
	windows := collectWindows(strategies)

	workers := req.Workers
	if workers <= 0 {
		workers = 4
	}

	bt.log.Info("backtest starting",
		"strategies", len(strategies), "codes", len(codes),
		"start", req.Start.Format(domain.DateLayout), "end", req.End.Format(domain.DateLayout))

	var (
		mu        sync.Mutex
		results   []Result
		processed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, code := range codes {
		code := code
		g.Go(func() error {
			series, err := bt.store.ReadSeries(gctx, code, readStart, req.End)
			if err != nil {
				return fmt.Errorf("reading series for %s: %w", code, err)
			}
			if req.Weekly {
				series = domain.ResampleWeekly(series)
			}

			var hits []Result
			if len(series) > 0 {
				ind := indicator.Compute(series, windows...)
				for _, s := range strategies {
					for _, sig := range s.Evaluate(series, ind) {
						if sig.Date.Before(req.Start) || sig.Date.After(req.End) {
							continue
						}
						hits = append(hits, Result{
							Signal:  sig,
							Returns: forwardReturns(ind.Closes, sig.Index, horizons),
						})
					}
				}
			}

			mu.Lock()
			results = append(results, hits...)
			processed++
			done := processed
			mu.Unlock()

			if req.Progress != nil {
				req.Progress(code, done, len(codes))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Strategy < b.Strategy
	})

	bt.log.Info("backtest finished", "signals", len(results))
	return results, nil
}

func (bt *Backtester) resolve(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		names = bt.registry.List()
	}
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, ok := bt.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}

func collectWindows(strategies []Strategy) []int {
	seen := make(map[int]struct{})
	var windows []int
	for _, s := range strategies {
		for _, w := range s.Windows() {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			windows = append(windows, w)
		}
	}
	sort.Ints(windows)
	return windows
}

// forwardReturns measures percentage moves from the signal-day close to
// the close h sessions later. Horizons past the series end are omitted.
func forwardReturns(closes []float64, idx int, horizons []int) map[int]float64 {
	returns := make(map[int]float64, len(horizons))
	base := closes[idx]
	if !domain.Valid(base) || base == 0 {
		return returns
	}
	for _, h := range horizons {
		j := idx + h
		if j >= len(closes) {
			continue
		}
		future := closes[j]
		if !domain.Valid(future) {
			continue
		}
		returns[h] = (future - base) / base * 100
	}
	return returns
}
