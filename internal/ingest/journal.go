package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"formosa/internal/domain"
)

// Journal manages the .tried-empty and .last-completed files for crash
// recovery and idempotency. Empty sessions never reach the store or the
// snapshot cache, so without the journal every re-run would re-fetch
// them; the journal remembers which days the exchange published nothing
// for.
type Journal struct {
	mu     sync.Mutex
	empty  map[string]struct{}
	writer *bufio.Writer
	file   *os.File
	dir    string
}

// NewJournal creates a journal rooted at dir and loads any existing
// .tried-empty entries.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	j := &Journal{
		empty: make(map[string]struct{}),
		dir:   dir,
	}

	path := filepath.Join(dir, ".tried-empty")
	data, err := os.ReadFile(path)
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			day := strings.TrimSpace(line)
			if day != "" {
				j.empty[day] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening .tried-empty: %w", err)
	}
	j.file = f
	j.writer = bufio.NewWriter(f)

	return j, nil
}

// IsEmptyDay reports whether the day was already fetched and the
// exchange published nothing for it.
func (j *Journal) IsEmptyDay(day time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.empty[day.Format(domain.DateLayout)]
	return ok
}

// MarkEmptyDay records a session the exchange published nothing for.
func (j *Journal) MarkEmptyDay(day time.Time) error {
	key := day.Format(domain.DateLayout)

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.empty[key]; ok {
		return nil
	}
	j.empty[key] = struct{}{}
	if _, err := j.writer.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("writing to .tried-empty: %w", err)
	}
	return j.writer.Flush()
}

// MarkCompleted writes the given day to .last-completed.
func (j *Journal) MarkCompleted(day time.Time) error {
	path := filepath.Join(j.dir, ".last-completed")
	return os.WriteFile(path, []byte(day.Format(domain.DateLayout)), 0o644)
}

// LastCompleted returns the day recorded by MarkCompleted, if any.
func (j *Journal) LastCompleted() (time.Time, bool) {
	path := filepath.Join(j.dir, ".last-completed")
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	day, err := time.Parse(domain.DateLayout, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Reset deletes the .tried-empty file and clears the in-memory set, so a
// forced re-sync re-fetches known-empty days.
func (j *Journal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		j.file.Close()
	}

	j.empty = make(map[string]struct{})

	path := filepath.Join(j.dir, ".tried-empty")
	os.Remove(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopening .tried-empty: %w", err)
	}
	j.file = f
	j.writer = bufio.NewWriter(f)
	return nil
}

// Close flushes and closes the .tried-empty file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.writer != nil {
		j.writer.Flush()
	}
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}
