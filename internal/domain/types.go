// Package domain defines the core value types shared across the formosa
// pipeline: daily per-instrument quotes and the series built from them.
package domain

import (
	"math"
	"time"
)

// DateLayout is the canonical session-date format used in the store and
// throughout the CLI.
const DateLayout = "2006-01-02"

// SourceTWSE tags quotes downloaded from the TWSE full-market report.
const SourceTWSE = "TWSE"

// Quote is one instrument's trading summary for one market session.
// Price fields hold NaN when the exchange published no value for that
// field; they are never zero-filled. Quotes are keyed by (Date, Code)
// and a re-download of the same key overwrites the stored row.
type Quote struct {
	Date         time.Time // session date, truncated to day
	Code         string    // instrument code, e.g. "2330"
	Name         string    // instrument display name
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Turnover     float64 // traded value for the session; NaN when unpublished
	Source       string
	DownloadedAt time.Time
}

// Day formats the session date with DateLayout.
func (q Quote) Day() string {
	return q.Date.Format(DateLayout)
}

// Closes extracts the close column from an ascending quote series.
func Closes(series []Quote) []float64 {
	closes := make([]float64, len(series))
	for i, q := range series {
		closes[i] = q.Close
	}
	return closes
}

// Valid reports whether a price field holds a published value.
func Valid(v float64) bool {
	return !math.IsNaN(v)
}
