// Package store persists daily market quotes and serves the read paths
// the sync and backtest pipelines depend on.
package store

import (
	"context"
	"time"

	"formosa/internal/domain"
)

// QuoteStore persists and retrieves daily quotes.
type QuoteStore interface {
	// BulkUpsert writes a batch of quotes in one transaction. Re-writing
	// the same (date, code) rows replaces them; the call is idempotent.
	BulkUpsert(ctx context.Context, quotes []domain.Quote) error

	// ReadSeries returns the quotes for one code within [start, end],
	// ordered by ascending date.
	ReadSeries(ctx context.Context, code string, start, end time.Time) ([]domain.Quote, error)

	// LatestDate returns the most recent stored session date. ok is false
	// when the store is empty.
	LatestDate(ctx context.Context) (latest time.Time, ok bool, err error)

	// ListCodes returns all distinct instrument codes, ascending.
	ListCodes(ctx context.Context) ([]string, error)
}
