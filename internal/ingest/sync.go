// Package ingest drives the daily snapshot pipeline: enumerate trading
// sessions, fetch each day's snapshot, and upsert it into the store.
// One bad day never aborts the range; failures are collected and
// reported so a later run can fill the gaps.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"formosa/internal/domain"
	"formosa/internal/fetch"
	"formosa/internal/store"
)

// Fetcher downloads one session's full-market snapshot.
type Fetcher interface {
	FetchDay(ctx context.Context, day time.Time) ([]domain.Quote, error)
}

// TradingCalendar enumerates open sessions.
type TradingCalendar interface {
	TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// Options tune one sync run.
type Options struct {
	// Force re-processes days at or before the store's watermark.
	Force bool
	// Progress, when set, is called after each day completes.
	Progress func(day time.Time, processed, total int)
}

// Result summarizes one sync run. Succeeded counts days whose snapshot
// was stored, Skipped counts watermark skips and empty sessions, Failed
// counts days whose download or write failed. Uncached counts days a
// cache-only run could not serve; they are also included in Skipped but
// stay eligible for a later networked sync. FailedDates is ascending.
type Result struct {
	Succeeded   int
	Failed      int
	Skipped     int
	Uncached    int
	FailedDates []time.Time
}

// Syncer coordinates calendar, fetcher, and store for range syncs.
type Syncer struct {
	fetcher  Fetcher
	calendar TradingCalendar
	store    store.QuoteStore
	journal  *Journal
	log      *slog.Logger

	// workers caps concurrent day fetches.
	workers int
	// haltAfter aborts the run after this many consecutive failures;
	// zero disables the halt.
	haltAfter int
}

// Config assembles a Syncer.
type Config struct {
	Fetcher  Fetcher
	Calendar TradingCalendar
	Store    store.QuoteStore
	// Journal, when set, records empty sessions so later runs skip them
	// without re-fetching.
	Journal   *Journal
	Workers   int
	HaltAfter int
	Logger    *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(cfg Config) *Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Syncer{
		fetcher:   cfg.Fetcher,
		calendar:  cfg.Calendar,
		store:     cfg.Store,
		journal:   cfg.Journal,
		log:       logger.With("component", "ingest"),
		workers:   workers,
		haltAfter: cfg.HaltAfter,
	}
}

// errHalted aborts the worker group once too many days fail in a row.
var errHalted = fmt.Errorf("consecutive failure limit reached")

// Sync processes every trading session in [start, end]. Days already
// covered by the store's watermark are skipped unless opts.Force is set.
// A failed day is recorded and the run continues; the run itself only
// errors on context cancellation, calendar or store breakage, or the
// consecutive-failure halt.
func (s *Syncer) Sync(ctx context.Context, start, end time.Time, opts Options) (*Result, error) {
	days, err := s.calendar.TradingDays(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("enumerating trading days: %w", err)
	}

	res := &Result{}

	if opts.Force {
		if s.journal != nil {
			if err := s.journal.Reset(); err != nil {
				return nil, fmt.Errorf("resetting journal: %w", err)
			}
		}
	} else {
		watermark, haveData, err := s.store.LatestDate(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading watermark: %w", err)
		}
		// A completed run whose tail was all empty sessions leaves the
		// store watermark behind; the journal's completion mark covers
		// those days.
		if s.journal != nil {
			if done, ok := s.journal.LastCompleted(); ok && (!haveData || done.After(watermark)) {
				watermark = done
				haveData = true
			}
		}
		remaining := days[:0]
		for _, day := range days {
			if haveData && !day.After(watermark) {
				res.Skipped++
				continue
			}
			if s.journal != nil && s.journal.IsEmptyDay(day) {
				res.Skipped++
				continue
			}
			remaining = append(remaining, day)
		}
		if res.Skipped > 0 {
			s.log.Info("resuming", "skipped", res.Skipped)
		}
		days = remaining
	}

	total := res.Skipped + len(days)
	s.log.Info("sync starting",
		"start", start.Format(domain.DateLayout), "end", end.Format(domain.DateLayout),
		"days", len(days), "workers", s.workers)

	var (
		mu          sync.Mutex
		processed   = res.Skipped
		consecutive int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, day := range days {
		day := day
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome, err := s.processDay(gctx, day)

			mu.Lock()
			switch {
			case err != nil:
				res.Failed++
				res.FailedDates = append(res.FailedDates, day)
				consecutive++
				s.log.Error("day failed", "day", day.Format(domain.DateLayout), "err", err)
			case outcome == dayUncached:
				res.Skipped++
				res.Uncached++
				consecutive = 0
			case outcome == dayEmpty:
				res.Skipped++
				consecutive = 0
			default:
				res.Succeeded++
				consecutive = 0
			}
			processed++
			done := processed
			halted := s.haltAfter > 0 && consecutive >= s.haltAfter
			mu.Unlock()

			if opts.Progress != nil {
				opts.Progress(day, done, total)
			}
			if halted {
				return errHalted
			}
			// Cancellation is a run error, not a per-day failure.
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sortDates(res.FailedDates)
		return res, err
	}

	sortDates(res.FailedDates)
	// Uncached days were never ingested; completing over them would hide
	// them from the next networked run.
	if s.journal != nil && res.Failed == 0 && res.Uncached == 0 {
		if jerr := s.journal.MarkCompleted(end); jerr != nil {
			s.log.Warn("journal write failed", "err", jerr)
		}
	}
	s.log.Info("sync finished",
		"succeeded", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

type dayOutcome int

const (
	dayStored dayOutcome = iota
	dayEmpty
	dayUncached
)

func (s *Syncer) processDay(ctx context.Context, day time.Time) (dayOutcome, error) {
	quotes, err := s.fetcher.FetchDay(ctx, day)
	if err != nil {
		// A cache-only miss is not a failure and not an empty session:
		// the day simply was not fetchable this run and must stay
		// eligible for the next one. It is never journaled.
		if errors.Is(err, fetch.ErrNotCached) {
			return dayUncached, nil
		}
		return dayStored, err
	}
	if len(quotes) == 0 {
		s.log.Info("no data for session", "day", day.Format(domain.DateLayout))
		if s.journal != nil {
			if jerr := s.journal.MarkEmptyDay(day); jerr != nil {
				s.log.Warn("journal write failed", "day", day.Format(domain.DateLayout), "err", jerr)
			}
		}
		return dayEmpty, nil
	}
	if err := s.store.BulkUpsert(ctx, quotes); err != nil {
		return dayStored, fmt.Errorf("storing %d quotes: %w", len(quotes), err)
	}
	s.log.Info("day stored", "day", day.Format(domain.DateLayout), "quotes", len(quotes))
	return dayStored, nil
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
