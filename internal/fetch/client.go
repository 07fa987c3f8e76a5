package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"formosa/internal/domain"
)

// stockCodePattern keeps 4-digit common-stock codes and drops warrants,
// convertibles, and index rows.
var stockCodePattern = regexp.MustCompile(`^[1-9][0-9]{3}$`)

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// ClientConfig configures a snapshot Client.
type ClientConfig struct {
	QuoteURL   string
	Policy     RetryPolicy
	RatePerMin int
	// Cache enables the per-day parquet snapshot cache when non-nil.
	Cache *SnapshotCache
	// Force bypasses the cache and re-downloads even cached days.
	Force bool
	// CacheOnly serves exclusively from the cache; uncached days yield
	// an empty snapshot without touching the network.
	CacheOnly bool
	Logger    *slog.Logger
}

// Client downloads one-day full-market snapshots from the TWSE MI_INDEX
// report. Safe for concurrent use; the rate limiter paces all callers.
type Client struct {
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	quoteURL  string
	cache     *SnapshotCache
	force     bool
	cacheOnly bool
	log       *slog.Logger
	now       func() time.Time
	retries   atomic.Int64
}

// NewClient creates a snapshot Client with its own retry budget.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 120
	}

	c := &Client{
		http:      NewHTTPClient(cfg.Policy),
		limiter:   rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 1),
		quoteURL:  cfg.QuoteURL,
		cache:     cfg.Cache,
		force:     cfg.Force,
		cacheOnly: cfg.CacheOnly,
		log:       logger.With("component", "fetch"),
		now:       time.Now,
	}

	c.http.RequestLogHook = func(_ retryablehttp.Logger, _ *http.Request, attempt int) {
		if attempt > 0 {
			c.retries.Add(1)
		}
	}

	return c
}

// Retries returns the number of retried HTTP attempts observed so far.
func (c *Client) Retries() int64 { return c.retries.Load() }

// FetchDay returns the full-market snapshot for one session date. An
// empty slice with a nil error means the market published nothing for
// that day. A non-nil error is always a *FetchError carrying the date;
// in cache-only mode an uncached day fails with ErrNotCached rather
// than passing as an empty session. No partial-day data is ever
// returned from a failed download.
func (c *Client) FetchDay(ctx context.Context, day time.Time) ([]domain.Quote, error) {
	if c.cache != nil && !c.force {
		if quotes, ok := c.cache.Load(day); ok {
			c.log.Debug("cache hit", "day", day.Format(domain.DateLayout), "rows", len(quotes))
			return quotes, nil
		}
	}
	if c.cacheOnly {
		c.log.Info("cache-only mode, day not cached", "day", day.Format(domain.DateLayout))
		return nil, &FetchError{Date: day, Err: ErrNotCached}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Date: day, Err: err}
	}

	quotes, err := c.download(ctx, day)
	if err != nil {
		return nil, &FetchError{Date: day, Err: err}
	}

	if c.cache != nil && len(quotes) > 0 {
		if cerr := c.cache.Store(day, quotes); cerr != nil {
			c.log.Warn("caching snapshot failed", "day", day.Format(domain.DateLayout), "err", cerr)
		}
	}
	return quotes, nil
}

func (c *Client) download(ctx context.Context, day time.Time) ([]domain.Quote, error) {
	url := fmt.Sprintf("%s?response=json&date=%s&type=ALL", c.quoteURL, day.Format("20060102"))
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
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return c.parseSnapshot(body, day)
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// miIndexResponse is the MI_INDEX JSON envelope. The report bundles many
// tables; the security table is located by its leading field names.
type miIndexResponse struct {
	Stat   string    `json:"stat"`
	Tables []miTable `json:"tables"`
}

type miTable struct {
	Fields []string `json:"fields"`
	Data   [][]any  `json:"data"`
}

func (c *Client) parseSnapshot(body []byte, day time.Time) ([]domain.Quote, error) {
	var payload miIndexResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	// stat other than OK means a closed session or not-yet-published day.
	if payload.Stat != "OK" {
		c.log.Info("no data published", "day", day.Format(domain.DateLayout), "stat", payload.Stat)
		return nil, nil
	}

	table, ok := findSecurityTable(payload.Tables)
	if !ok {
		return nil, fmt.Errorf("security table not found for %s", day.Format(domain.DateLayout))
	}

	col := func(name string) int {
		for i, f := range table.Fields {
			if f == name {
				return i
			}
		}
		return -1
	}
	closeIdx := col("收盤價")
	if closeIdx < 0 {
		return nil, fmt.Errorf("close column missing for %s", day.Format(domain.DateLayout))
	}

	downloaded := c.now()
	quotes := make([]domain.Quote, 0, len(table.Data))
	for _, row := range table.Data {
		code := cellString(row, col("證券代號"))
		if !stockCodePattern.MatchString(code) {
			continue
		}
		closePrice := parsePrice(cellString(row, closeIdx))
		if math.IsNaN(closePrice) {
			continue
		}
		quotes = append(quotes, domain.Quote{
			Date:         day,
			Code:         code,
			Name:         cellString(row, col("證券名稱")),
			Open:         parsePrice(cellString(row, col("開盤價"))),
			High:         parsePrice(cellString(row, col("最高價"))),
			Low:          parsePrice(cellString(row, col("最低價"))),
			Close:        closePrice,
			Turnover:     parsePrice(cellString(row, col("成交金額"))),
			Source:       domain.SourceTWSE,
			DownloadedAt: downloaded,
		})
	}
	return quotes, nil
}

// findSecurityTable locates the per-security quote table by its leading
// field names. The report's table order has drifted before; matching on
// field names tolerates that.
func findSecurityTable(tables []miTable) (miTable, bool) {
	for _, t := range tables {
		if len(t.Fields) >= 2 && t.Fields[0] == "證券代號" && t.Fields[1] == "證券名稱" {
			return t, true
		}
	}
	return miTable{}, false
}

func cellString(row []any, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// parsePrice converts one report cell to a float. The report uses "--"
// and blanks for unpublished values and comma thousands separators.
func parsePrice(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	switch s {
	case "", "--", "nan", "None":
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
