package strategy

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"formosa/internal/domain"
	"formosa/internal/indicator"
)

// memStore is an in-memory QuoteStore for backtest tests.
type memStore struct {
	mu     sync.Mutex
	quotes map[string][]domain.Quote // code → ascending series
}

func newMemStore() *memStore {
	return &memStore{quotes: make(map[string][]domain.Quote)}
}

func (m *memStore) BulkUpsert(_ context.Context, quotes []domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range quotes {
		m.quotes[q.Code] = append(m.quotes[q.Code], q)
	}
	for code := range m.quotes {
		sort.Slice(m.quotes[code], func(i, j int) bool {
			return m.quotes[code][i].Date.Before(m.quotes[code][j].Date)
		})
	}
	return nil
}

func (m *memStore) ReadSeries(_ context.Context, code string, start, end time.Time) ([]domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Quote
	for _, q := range m.quotes[code] {
		if q.Date.Before(start) || q.Date.After(end) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *memStore) LatestDate(_ context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	found := false
	for _, series := range m.quotes {
		for _, q := range series {
			if q.Date.After(latest) {
				latest = q.Date
				found = true
			}
		}
	}
	return latest, found, nil
}

func (m *memStore) ListCodes(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var codes []string
	for code := range m.quotes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// stubStrategy fires on a fixed set of series indices.
type stubStrategy struct {
	name    string
	windows []int
	fireAt  []int
}

func (s *stubStrategy) Name() string   { return s.name }
func (s *stubStrategy) Windows() []int { return s.windows }

func (s *stubStrategy) Evaluate(series []domain.Quote, _ *indicator.Set) []Signal {
	var signals []Signal
	for _, i := range s.fireAt {
		if i < len(series) {
			signals = append(signals, Signal{
				Code:     series[i].Code,
				Date:     series[i].Date,
				Strategy: s.name,
				Close:    series[i].Close,
				Index:    i,
			})
		}
	}
	return signals
}

func seedSeries(t *testing.T, s *memStore, code string, start time.Time, closes []float64) {
	t.Helper()
	quotes := make([]domain.Quote, len(closes))
	for i, c := range closes {
		quotes[i] = domain.Quote{
			Date:  start.AddDate(0, 0, i),
			Code:  code,
			Close: c,
		}
	}
	if err := s.BulkUpsert(context.Background(), quotes); err != nil {
		t.Fatalf("seeding %s: %v", code, err)
	}
}

func TestRunComputesForwardReturns(t *testing.T) {
	ms := newMemStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// 100 at the signal day, 110 five days later, 90 ten days later.
	closes := make([]float64, 12)
	for i := range closes {
		closes[i] = 100
	}
	closes[5] = 110
	closes[10] = 90
	seedSeries(t, ms, "2330", start, closes)

	reg := NewRegistry()
	reg.Register(&stubStrategy{name: "stub", fireAt: []int{0}})

	bt := NewBacktester(ms, reg, nil)
	results, err := bt.Run(context.Background(), RunRequest{
		Start:    start,
		End:      start.AddDate(0, 0, 30),
		Horizons: []int{5, 10, 20},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if got := r.Returns[5]; math.Abs(got-10.0) > 1e-9 {
		t.Errorf("5-day return = %v, want 10.0", got)
	}
	if got := r.Returns[10]; math.Abs(got-(-10.0)) > 1e-9 {
		t.Errorf("10-day return = %v, want -10.0", got)
	}
	// The 20-day horizon reaches past the series end: absent, not zero.
	if _, ok := r.Returns[20]; ok {
		t.Errorf("20-day return present = %v, want omitted", r.Returns[20])
	}
}

func TestRunFiltersSignalsToRange(t *testing.T) {
	ms := newMemStore()
	histStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	seedSeries(t, ms, "2330", histStart, closes)

	reg := NewRegistry()
	reg.Register(&stubStrategy{name: "stub", fireAt: []int{2, 20}})

	// Start the reporting window after index 2's date; the warmup history
	// is still read but its signal is not reported.
	bt := NewBacktester(ms, reg, nil)
	results, err := bt.Run(context.Background(), RunRequest{
		Start:        histStart.AddDate(0, 0, 10),
		End:          histStart.AddDate(0, 0, 40),
		LookbackDays: 10,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (early signal filtered): %+v", len(results), results)
	}
	if results[0].Index != 20 {
		t.Errorf("surviving signal index = %d, want 20", results[0].Index)
	}
}

func TestRunOrdersDeterministically(t *testing.T) {
	ms := newMemStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, code := range []string{"9910", "1101", "2330"} {
		closes := make([]float64, 10)
		for i := range closes {
			closes[i] = 50
		}
		seedSeries(t, ms, code, start, closes)
	}

	reg := NewRegistry()
	reg.Register(&stubStrategy{name: "beta", fireAt: []int{3}})
	reg.Register(&stubStrategy{name: "alpha", fireAt: []int{3, 1}})

	bt := NewBacktester(ms, reg, nil)
	results, err := bt.Run(context.Background(), RunRequest{
		Start:   start,
		End:     start.AddDate(0, 0, 20),
		Workers: 3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 3 codes × (alpha twice + beta once).
	if len(results) != 9 {
		t.Fatalf("got %d results, want 9", len(results))
	}
	for i := 1; i < len(results); i++ {
		a, b := results[i-1], results[i]
		if a.Code > b.Code {
			t.Fatalf("results not ordered by code at %d: %s > %s", i, a.Code, b.Code)
		}
		if a.Code == b.Code && a.Date.After(b.Date) {
			t.Fatalf("results not ordered by date at %d", i)
		}
		if a.Code == b.Code && a.Date.Equal(b.Date) && a.Strategy > b.Strategy {
			t.Fatalf("results not ordered by strategy at %d", i)
		}
	}
}

func TestRunWeeklyResamplesSeries(t *testing.T) {
	ms := newMemStore()
	// 2024-01-01 is a Monday; 15 consecutive days cover three ISO weeks.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	seedSeries(t, ms, "2330", start, closes)

	reg := NewRegistry()
	reg.Register(&stubStrategy{name: "stub", fireAt: []int{0}})

	bt := NewBacktester(ms, reg, nil)
	results, err := bt.Run(context.Background(), RunRequest{
		Start:        start,
		End:          start.AddDate(0, 0, 30),
		Horizons:     []int{1},
		LookbackDays: 30,
		Weekly:       true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	// Bar 0 is the first week, closing on Sunday the 7th at 7; one bar
	// later the close is 14, so the one-bar return spans a week.
	if !r.Date.Equal(start.AddDate(0, 0, 6)) {
		t.Errorf("signal date = %s, want 2024-01-07", r.Date.Format(domain.DateLayout))
	}
	if r.Close != 7 {
		t.Errorf("signal close = %v, want 7", r.Close)
	}
	if got := r.Returns[1]; math.Abs(got-100.0) > 1e-9 {
		t.Errorf("one-bar return = %v, want 100.0", got)
	}
}

func TestRunUnknownStrategy(t *testing.T) {
	bt := NewBacktester(newMemStore(), NewRegistry(), nil)
	_, err := bt.Run(context.Background(), RunRequest{Strategies: []string{"missing"}})
	if err == nil {
		t.Fatal("unknown strategy should fail")
	}
}

func TestRunProgressCallback(t *testing.T) {
	ms := newMemStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedSeries(t, ms, "2330", start, []float64{1, 2, 3})
	seedSeries(t, ms, "1101", start, []float64{1, 2, 3})

	reg := NewRegistry()
	reg.Register(&stubStrategy{name: "stub"})

	var mu sync.Mutex
	var seen []string
	bt := NewBacktester(ms, reg, nil)
	_, err := bt.Run(context.Background(), RunRequest{
		Start: start,
		End:   start.AddDate(0, 0, 5),
		Progress: func(code string, processed, total int) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, code)
			if total != 2 {
				t.Errorf("progress total = %d, want 2", total)
			}
			if processed < 1 || processed > 2 {
				t.Errorf("progress processed = %d, want 1..2", processed)
			}
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("progress called %d times, want 2", len(seen))
	}
}

func TestForwardReturnsFromNaNBase(t *testing.T) {
	closes := []float64{math.NaN(), 100, 110}
	if got := forwardReturns(closes, 0, []int{1, 2}); len(got) != 0 {
		t.Errorf("NaN base produced returns %v, want none", got)
	}
	// NaN future omits that horizon only.
	closes = []float64{100, math.NaN(), 120}
	got := forwardReturns(closes, 0, []int{1, 2})
	if _, ok := got[1]; ok {
		t.Errorf("NaN future horizon present, want omitted")
	}
	if v, ok := got[2]; !ok || math.Abs(v-20.0) > 1e-9 {
		t.Errorf("2-day return = %v ok=%v, want 20.0", v, ok)
	}
}
