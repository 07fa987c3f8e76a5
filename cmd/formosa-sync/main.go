// Daily snapshot sync: fetch full-market quotes for every trading
// session in a date range and upsert them into the SQLite store.
// Re-running is safe; days already stored are skipped.
//
// Usage:
//
//	go run cmd/formosa-sync/main.go [-start 2024-01-01] [-end 2024-06-30] [-last 30] [-force]
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"formosa/internal/calendar"
	"formosa/internal/config"
	"formosa/internal/domain"
	"formosa/internal/fetch"
	"formosa/internal/ingest"
	"formosa/internal/store"
	"formosa/internal/util"
)

func main() {
	startFlag := flag.String("start", "", "first date to sync (YYYY-MM-DD, default: config start_date or store watermark)")
	endFlag := flag.String("end", "", "last date to sync (YYYY-MM-DD, default: today)")
	last := flag.Int("last", 0, "sync only the last N calendar days (overrides -start)")
	force := flag.Bool("force", false, "re-download and re-store days already covered")
	cacheOnly := flag.Bool("cache-only", false, "serve only from the local snapshot cache, no network")
	flag.Parse()

	cfgPath := "config/formosa.yaml"
	if p := os.Getenv("FORMOSA_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Storage.DataDir, "formosa-sync.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if *endFlag != "" {
		if end, err = time.Parse(domain.DateLayout, *endFlag); err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
	}

	start, err := time.Parse(domain.DateLayout, cfg.Sync.StartDate)
	if err != nil {
		log.Fatalf("invalid start_date in config: %v", err)
	}
	if *startFlag != "" {
		if start, err = time.Parse(domain.DateLayout, *startFlag); err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
	}
	if *last > 0 {
		start = end.AddDate(0, 0, -*last)
	}

	qs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer qs.Close()

	policy := fetch.RetryPolicy{
		MaxAttempts:       cfg.TWSE.MaxAttempts,
		BackoffMin:        500 * time.Millisecond,
		BackoffMax:        8 * time.Second,
		RateLimitCooldown: time.Duration(cfg.TWSE.RateLimitCooldownSec) * time.Second,
		Timeout:           time.Duration(cfg.TWSE.TimeoutSec) * time.Second,
	}

	client := fetch.NewClient(fetch.ClientConfig{
		QuoteURL:   cfg.TWSE.QuoteURL,
		Policy:     policy,
		RatePerMin: cfg.TWSE.RateLimitPerMin,
		Cache:      fetch.NewSnapshotCache(filepath.Join(cfg.Storage.DataDir, "twse", "daily")),
		Force:      *force,
		CacheOnly:  *cacheOnly,
		Logger:     logger,
	})

	cal := calendar.New(fetch.NewHTTPClient(policy), cfg.TWSE.CalendarURL, cfg.Storage.DataDir, logger)

	journal, err := ingest.NewJournal(filepath.Join(cfg.Storage.DataDir, "twse", "daily"))
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer journal.Close()

	syncer := ingest.NewSyncer(ingest.Config{
		Fetcher:   client,
		Calendar:  cal,
		Store:     qs,
		Journal:   journal,
		Workers:   cfg.Sync.MaxWorkers,
		HaltAfter: cfg.Sync.HaltOnFail,
		Logger:    logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := syncer.Sync(ctx, start, end, ingest.Options{
		Force: *force,
		Progress: func(day time.Time, processed, total int) {
			logger.Info("progress", "day", day.Format(domain.DateLayout), "done", processed, "total", total)
		},
	})
	if res != nil {
		logger.Info("sync summary",
			"succeeded", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped,
			"uncached", res.Uncached, "retries", client.Retries())
		for _, d := range res.FailedDates {
			logger.Warn("day left unfilled", "day", d.Format(domain.DateLayout))
		}
	}
	if err != nil {
		log.Fatalf("sync error: %v", err)
	}
}
