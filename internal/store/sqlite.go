package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"formosa/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ QuoteStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS ohlcv (
	date          TEXT NOT NULL,
	code          TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	open          REAL,
	high          REAL,
	low           REAL,
	close         REAL,
	turnover      REAL,
	source        TEXT NOT NULL DEFAULT '',
	downloaded_at TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (date, code)
);
CREATE INDEX IF NOT EXISTS idx_ohlcv_code_date ON ohlcv (code, date);
`

const upsertSQL = `
INSERT INTO ohlcv (date, code, name, open, high, low, close, turnover, source, downloaded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (date, code) DO UPDATE SET
	name          = excluded.name,
	open          = excluded.open,
	high          = excluded.high,
	low           = excluded.low,
	close         = excluded.close,
	turnover      = excluded.turnover,
	source        = excluded.source,
	downloaded_at = excluded.downloaded_at
`

// SQLiteStore implements QuoteStore backed by a SQLite database. SQLite
// allows one writer at a time, so writes are serialized with a mutex.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at dbPath, applies the
// schema, and returns a ready-to-use store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BulkUpsert writes the whole batch in a single transaction.
func (s *SQLiteStore) BulkUpsert(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		_, err := stmt.ExecContext(ctx,
			q.Date.Format(domain.DateLayout),
			q.Code,
			q.Name,
			nullable(q.Open),
			nullable(q.High),
			nullable(q.Low),
			nullable(q.Close),
			nullable(q.Turnover),
			q.Source,
			q.DownloadedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("upserting %s/%s: %w", q.Day(), q.Code, err)
		}
	}

	return tx.Commit()
}

// ReadSeries returns one instrument's quotes in [start, end], ascending.
func (s *SQLiteStore) ReadSeries(ctx context.Context, code string, start, end time.Time) ([]domain.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, code, name, open, high, low, close, turnover, source, downloaded_at
		FROM ohlcv
		WHERE code = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		code, start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("querying series for %s: %w", code, err)
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// LatestDate returns the most recent session date present in the store.
func (s *SQLiteStore) LatestDate(ctx context.Context) (time.Time, bool, error) {
	var date sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM ohlcv`).Scan(&date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying latest date: %w", err)
	}
	if !date.Valid || date.String == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(domain.DateLayout, date.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing latest date %q: %w", date.String, err)
	}
	return t, true, nil
}

// ListCodes returns all distinct instrument codes, ascending.
func (s *SQLiteStore) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT code FROM ohlcv ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ---------------------------------------------------------------------------
// NaN <-> NULL conversion
// ---------------------------------------------------------------------------

// nullable maps NaN to NULL so unpublished values survive the round trip
// without turning into zeros.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func scanQuote(rows *sql.Rows) (domain.Quote, error) {
	var (
		q                              domain.Quote
		dateStr, downloadedStr         string
		open, high, low, cls, turnover sql.NullFloat64
	)
	if err := rows.Scan(&dateStr, &q.Code, &q.Name, &open, &high, &low, &cls, &turnover, &q.Source, &downloadedStr); err != nil {
		return domain.Quote{}, fmt.Errorf("scanning quote: %w", err)
	}

	date, err := time.Parse(domain.DateLayout, dateStr)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parsing date %q: %w", dateStr, err)
	}
	q.Date = date
	if downloadedStr != "" {
		if t, err := time.Parse(time.RFC3339, downloadedStr); err == nil {
			q.DownloadedAt = t
		}
	}
	q.Open = floatOrNaN(open)
	q.High = floatOrNaN(high)
	q.Low = floatOrNaN(low)
	q.Close = floatOrNaN(cls)
	q.Turnover = floatOrNaN(turnover)
	return q, nil
}
