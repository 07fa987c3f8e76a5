package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"formosa/internal/domain"
)

// snapshotRow is the parquet schema for one cached quote row.
// Timestamps are Unix milliseconds; absent prices stay NaN.
type snapshotRow struct {
	Date       int64   `parquet:"date,timestamp(millisecond)"`
	Code       string  `parquet:"code"`
	Name       string  `parquet:"name"`
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Turnover   float64 `parquet:"turnover"`
	Source     string  `parquet:"source"`
	Downloaded int64   `parquet:"downloaded,timestamp(millisecond)"`
}

// SnapshotCache stores each successfully downloaded day as one parquet
// file, so re-running a sync does not re-download days already on disk.
type SnapshotCache struct {
	Dir string
}

// NewSnapshotCache creates a cache rooted at dir (created on first write).
func NewSnapshotCache(dir string) *SnapshotCache {
	return &SnapshotCache{Dir: dir}
}

// path layout: <Dir>/<YYYYMMDD>.parquet
func (c *SnapshotCache) path(day time.Time) string {
	return filepath.Join(c.Dir, day.Format("20060102")+".parquet")
}

// Load returns the cached snapshot for the day, if present.
func (c *SnapshotCache) Load(day time.Time) ([]domain.Quote, bool) {
	rows, err := parquet.ReadFile[snapshotRow](c.path(day))
	if err != nil {
		return nil, false
	}
	quotes := make([]domain.Quote, 0, len(rows))
	for _, r := range rows {
		quotes = append(quotes, domain.Quote{
			Date:         time.UnixMilli(r.Date).UTC(),
			Code:         r.Code,
			Name:         r.Name,
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
			Turnover:     r.Turnover,
			Source:       r.Source,
			DownloadedAt: time.UnixMilli(r.Downloaded).UTC(),
		})
	}
	return quotes, true
}

// Store writes the day's snapshot, overwriting any prior cache file.
func (c *SnapshotCache) Store(day time.Time, quotes []domain.Quote) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	rows := make([]snapshotRow, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, snapshotRow{
			Date:       q.Date.UnixMilli(),
			Code:       q.Code,
			Name:       q.Name,
			Open:       q.Open,
			High:       q.High,
			Low:        q.Low,
			Close:      q.Close,
			Turnover:   q.Turnover,
			Source:     q.Source,
			Downloaded: q.DownloadedAt.UnixMilli(),
		})
	}
	if err := parquet.WriteFile(c.path(day), rows); err != nil {
		return fmt.Errorf("writing snapshot for %s: %w", day.Format(domain.DateLayout), err)
	}
	return nil
}
