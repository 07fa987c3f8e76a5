// Package strategy defines the Strategy interface for signal generators
// over daily quote series and provides a Registry for managing multiple
// strategy implementations.
package strategy

import (
	"sort"
	"time"

	"formosa/internal/domain"
	"formosa/internal/indicator"
)

// Signal is one strategy hit on one instrument and session date.
type Signal struct {
	Code     string
	Name     string
	Date     time.Time
	Strategy string
	// Close is the signal-day close; forward returns are measured from it.
	Close float64
	// Index is the signal's position within the evaluated series.
	Index int
}

// Strategy evaluates one instrument's full history and returns the dates
// on which its condition fires.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Windows returns the moving-average windows the strategy reads, so
	// the caller can compute them once per instrument.
	Windows() []int

	// Evaluate scans the series with its precomputed indicators and
	// returns zero or more signals. Indices in the result refer to
	// positions in series.
	Evaluate(series []domain.Quote, ind *indicator.Set) []Signal
}

// Registry holds a named collection of strategies for lookup and
// enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates
// whether the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
