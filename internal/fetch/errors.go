package fetch

import (
	"errors"
	"fmt"
	"time"

	"formosa/internal/domain"
)

// ErrNotCached reports a cache-only fetch of a day with no snapshot on
// disk. It is not an empty session: the exchange may well have published
// data, this client just was not allowed to ask. Callers distinguish it
// with errors.Is.
var ErrNotCached = errors.New("snapshot not cached")

// FetchError reports that one day's snapshot could not be retrieved after
// the retry budget was exhausted. The caller decides whether to skip the
// day or abort the range.
type FetchError struct {
	Date time.Time
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Date.Format(domain.DateLayout), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
