// Strategy scan: evaluate the built-in moving-average strategies over
// the stored history and print every signal with its forward returns.
//
// Usage:
//
//	go run cmd/formosa-backtest/main.go -start 2024-01-01 -end 2024-06-30 [-strategies ma5-cross-ma10] [-codes 2330,1101]
//	go run cmd/formosa-backtest/main.go -latest
//	go run cmd/formosa-backtest/main.go -weekly -start 2024-01-01
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"formosa/internal/config"
	"formosa/internal/domain"
	"formosa/internal/store"
	"formosa/internal/strategy"
	"formosa/internal/strategy/builtins"
	"formosa/internal/util"
)

func main() {
	startFlag := flag.String("start", "", "first signal date to report (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "last signal date to report (YYYY-MM-DD, default: today)")
	strategiesFlag := flag.String("strategies", "", "comma-separated strategy names (default: all registered)")
	codesFlag := flag.String("codes", "", "comma-separated instrument codes (default: every stored code)")
	latest := flag.Bool("latest", false, "report only the most recent stored session")
	weekly := flag.Bool("weekly", false, "scan weekly bars with the sequence strategies")
	list := flag.Bool("list", false, "list registered strategies and exit")
	flag.Parse()

	cfgPath := "config/formosa.yaml"
	if p := os.Getenv("FORMOSA_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	registry := strategy.NewRegistry()
	if *weekly {
		registerWeekly(registry)
	} else {
		registerDaily(registry)
	}

	if *list {
		for _, name := range registry.List() {
			fmt.Println(name)
		}
		return
	}

	qs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer qs.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var start, end time.Time
	switch {
	case *latest:
		day, ok, err := qs.LatestDate(ctx)
		if err != nil {
			log.Fatalf("failed to read latest session: %v", err)
		}
		if !ok {
			log.Fatal("store is empty; run formosa-sync first")
		}
		start, end = day, day
	case *startFlag == "":
		log.Fatal("-start is required (or use -latest)")
	default:
		if start, err = time.Parse(domain.DateLayout, *startFlag); err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
		end = time.Now().UTC().Truncate(24 * time.Hour)
		if *endFlag != "" {
			if end, err = time.Parse(domain.DateLayout, *endFlag); err != nil {
				log.Fatalf("invalid -end: %v", err)
			}
		}
	}

	bt := strategy.NewBacktester(qs, registry, logger)

	results, err := bt.Run(ctx, strategy.RunRequest{
		Strategies:   splitList(*strategiesFlag),
		Codes:        splitList(*codesFlag),
		Start:        start,
		End:          end,
		Horizons:     cfg.Backtest.Horizons,
		LookbackDays: cfg.Backtest.LookbackDays,
		Weekly:       *weekly,
		Workers:      cfg.Backtest.MaxWorkers,
	})
	if err != nil {
		log.Fatalf("backtest error: %v", err)
	}

	printResults(results, cfg.Backtest.Horizons)
}

func registerDaily(registry *strategy.Registry) {
	registry.Register(builtins.NewSMACross(5, 10))
	registry.Register(builtins.NewSMACross(10, 20))
	registry.Register(builtins.NewGoldenCross(50, 200))
	registry.Register(builtins.NewUptrend(60))
	registry.Register(builtins.NewFlatMA(5, 10))
	registry.Register(builtins.NewFlatMA(10, 20))
	registry.Register(builtins.NewFlatMA(5, 20))
	registry.Register(builtins.NewEqMA(5, 10))
	registry.Register(builtins.NewEqMA(10, 20))
	registry.Register(builtins.NewEqMA(5, 20))
}

// registerWeekly installs the weekly 5/10/20/60 stack-reordering scans.
// Each pair (or triple) describes the strict top-to-bottom order of the
// averages on consecutive weekly bars.
func registerWeekly(registry *strategy.Registry) {
	pairs := [][2][]int{
		{{60, 5, 20, 10}, {60, 5, 10, 20}},
		{{60, 5, 10, 20}, {5, 60, 10, 20}},
		{{60, 5, 20, 10}, {5, 60, 20, 10}},
		{{60, 20, 5, 10}, {60, 5, 20, 10}},
		{{20, 60, 5, 10}, {5, 60, 20, 10}},
		{{20, 10, 5, 60}, {20, 5, 10, 60}},
		{{60, 10, 5, 20}, {60, 5, 10, 20}},
		{{60, 10, 5, 20}, {5, 60, 10, 20}},
		{{60, 10, 5, 20}, {5, 10, 60, 20}},
		{{60, 20, 5, 10}, {5, 60, 20, 10}},
		{{60, 5, 20, 10}, {5, 60, 10, 20}},
		{{10, 5, 20, 60}, {5, 10, 20, 60}},
		{{10, 5, 20, 60}, {10, 20, 5, 60}},
	}
	for _, p := range pairs {
		registry.Register(builtins.NewWeeklySequence(p[0], p[1]))
	}

	triples := [][3][]int{
		{{5, 10, 20, 60}, {10, 5, 20, 60}, {5, 10, 20, 60}},
		{{60, 10, 5, 20}, {60, 10, 20, 5}, {60, 5, 20, 10}},
		{{60, 20, 10, 5}, {60, 10, 20, 5}, {60, 5, 10, 20}},
		{{60, 20, 10, 5}, {60, 10, 20, 5}, {60, 20, 10, 5}},
		{{60, 20, 10, 5}, {60, 10, 20, 5}, {60, 5, 20, 10}},
		{{60, 10, 20, 5}, {60, 5, 10, 20}, {60, 10, 5, 20}},
	}
	for _, tr := range triples {
		registry.Register(builtins.NewThreeWeekSequence(tr[0], tr[1], tr[2]))
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printResults(results []strategy.Result, horizons []int) {
	if len(horizons) == 0 {
		horizons = strategy.DefaultHorizons
	}
	sorted := append([]int(nil), horizons...)
	sort.Ints(sorted)

	header := "code\tdate\tstrategy\tclose"
	for _, h := range sorted {
		header += fmt.Sprintf("\t+%dd%%", h)
	}
	fmt.Println(header)

	for _, r := range results {
		line := fmt.Sprintf("%s\t%s\t%s\t%.2f",
			r.Code, r.Date.Format(domain.DateLayout), r.Strategy, r.Close)
		for _, h := range sorted {
			if v, ok := r.Returns[h]; ok {
				line += fmt.Sprintf("\t%.2f", v)
			} else {
				line += "\t-"
			}
		}
		fmt.Println(line)
	}
	fmt.Fprintf(os.Stderr, "%d signals\n", len(results))
}
