// Package calendar decides which dates are open market sessions: weekdays
// minus the holidays published on the exchange's yearly schedule page.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"formosa/internal/domain"
)

// dateToken matches ROC (114/1/1) and Gregorian (2025/1/1) date tokens in
// a schedule row.
var dateToken = regexp.MustCompile(`(\d{3,4})/(\d{1,2})/(\d{1,2})`)

// closureKeywords mark a schedule row as a market closure. The page's
// wording drifts year to year; matching any keyword is enough.
var closureKeywords = []string{
	"休市", "放假", "停止交易", "補假", "連假", "除夕", "春節", "國慶", "中秋",
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Calendar enumerates trading sessions. Holiday sets are fetched per
// year, parsed tolerantly, and cached as JSON files under the data dir.
type Calendar struct {
	http    *retryablehttp.Client
	urlTmpl string // fmt template taking the ROC year
	dataDir string
	refresh bool
	log     *slog.Logger

	mu    sync.Mutex
	years map[int]map[string]struct{} // year → set of "YYYY-MM-DD" holidays
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithRefresh forces holiday schedules to be re-fetched, ignoring cache
// files.
func WithRefresh() Option {
	return func(c *Calendar) { c.refresh = true }
}

// New creates a Calendar fetching holiday schedules through the given
// retrying HTTP client.
func New(client *retryablehttp.Client, urlTmpl, dataDir string, logger *slog.Logger, opts ...Option) *Calendar {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Calendar{
		http:    client,
		urlTmpl: urlTmpl,
		dataDir: dataDir,
		log:     logger.With("component", "calendar"),
		years:   make(map[int]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsTradingDay reports whether d is an open market session.
func (c *Calendar) IsTradingDay(ctx context.Context, d time.Time) (bool, error) {
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}
	holidays, err := c.holidaysForYear(ctx, d.Year())
	if err != nil {
		return false, err
	}
	_, closed := holidays[d.Format(domain.DateLayout)]
	return !closed, nil
}

// TradingDays enumerates the open sessions in [start, end], strictly
// ascending with no duplicates; weekends and published holidays never
// appear.
func (c *Calendar) TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: %s after %s", start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	}

	start = truncateDay(start)
	end = truncateDay(end)

	holidays := make(map[string]struct{})
	for year := start.Year(); year <= end.Year(); year++ {
		h, err := c.holidaysForYear(ctx, year)
		if err != nil {
			return nil, err
		}
		for d := range h {
			holidays[d] = struct{}{}
		}
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if _, closed := holidays[d.Format(domain.DateLayout)]; closed {
			continue
		}
		days = append(days, d)
	}
	return days, nil
}

// ---------------------------------------------------------------------------
// Holiday schedule: cache + fetch + tolerant parse
// ---------------------------------------------------------------------------

// cacheFile is the on-disk per-year holiday cache.
type cacheFile struct {
	Year     int      `json:"year"`
	Holidays []string `json:"holidays"`
	CachedAt string   `json:"cached_at"`
}

func (c *Calendar) cachePath(year int) string {
	return filepath.Join(c.dataDir, fmt.Sprintf("calendar_%d.json", year))
}

func (c *Calendar) holidaysForYear(ctx context.Context, year int) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.years[year]; ok {
		return set, nil
	}

	if !c.refresh {
		if set, ok := c.loadCache(year); ok {
			c.years[year] = set
			return set, nil
		}
	}

	set, err := c.fetchHolidays(ctx, year)
	if err != nil {
		// Degrade to weekdays-only rather than failing the whole sync.
		c.log.Warn("holiday schedule unavailable, using weekday-only calendar", "year", year, "err", err)
		set = make(map[string]struct{})
	} else {
		c.storeCache(year, set)
	}

	c.years[year] = set
	return set, nil
}

func (c *Calendar) loadCache(year int) (map[string]struct{}, bool) {
	data, err := os.ReadFile(c.cachePath(year))
	if err != nil {
		return nil, false
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		c.log.Warn("holiday cache unreadable", "year", year, "err", err)
		return nil, false
	}
	set := make(map[string]struct{}, len(cf.Holidays))
	for _, d := range cf.Holidays {
		set[d] = struct{}{}
	}
	c.log.Debug("holiday cache hit", "year", year, "holidays", len(set))
	return set, true
}

func (c *Calendar) storeCache(year int, set map[string]struct{}) {
	days := make([]string, 0, len(set))
	for d := range set {
		days = append(days, d)
	}
	sort.Strings(days)

	cf := cacheFile{
		Year:     year,
		Holidays: days,
		CachedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		c.log.Warn("cannot create calendar cache dir", "err", err)
		return
	}
	if err := os.WriteFile(c.cachePath(year), data, 0o644); err != nil {
		c.log.Warn("cannot write holiday cache", "year", year, "err", err)
	}
}

func (c *Calendar) fetchHolidays(ctx context.Context, year int) (map[string]struct{}, error) {
	url := fmt.Sprintf(c.urlTmpl, rocYear(year))
	c.log.Info("fetching holiday schedule", "year", year, "url", url)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading schedule page: %w", err)
	}

	set := c.parseSchedule(string(body), year)
	c.log.Info("parsed holiday schedule", "year", year, "holidays", len(set))
	return set, nil
}

// parseSchedule scans table rows of the schedule page for closure
// entries. Rows whose date token cannot be interpreted are skipped with
// a warning; format drift in one entry never fails the year.
func (c *Calendar) parseSchedule(html string, year int) map[string]struct{} {
	set := make(map[string]struct{})

	for _, row := range strings.Split(html, "<tr") {
		text := tagPattern.ReplaceAllString(row, " ")
		if !containsAny(text, closureKeywords) {
			continue
		}
		m := dateToken.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		d, err := tokenToDate(m)
		if err != nil {
			c.log.Warn("skipping unparseable schedule entry", "year", year, "token", m[0], "err", err)
			continue
		}
		if d.Year() != year {
			continue
		}
		set[d.Format(domain.DateLayout)] = struct{}{}
	}
	return set
}

// tokenToDate interprets a matched date token, converting 3-digit ROC
// years to Gregorian.
func tokenToDate(m []string) (time.Time, error) {
	y, _ := strconv.Atoi(m[1])
	if len(m[1]) <= 3 {
		y += 1911
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	d := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, fmt.Errorf("no such date %s", m[0])
	}
	return d, nil
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func rocYear(year int) int { return year - 1911 }

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
