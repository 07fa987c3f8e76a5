// Package fetch retrieves one-day full-market quote snapshots from the
// TWSE reporting API, with bounded retries, rate-limit cooldowns, request
// pacing, and a per-day parquet snapshot cache.
package fetch

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// RetryPolicy bounds the retry behaviour of one HTTP client. Each call
// owns its own retry budget; nothing here is shared mutable state.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int
	// BackoffMin/BackoffMax bound the exponential backoff between
	// transient-failure retries.
	BackoffMin time.Duration
	BackoffMax time.Duration
	// RateLimitCooldown is the fixed delay applied after an HTTP 429
	// instead of the generic backoff curve, so a throttled client does
	// not amplify the block. A server Retry-After header wins when
	// present.
	RateLimitCooldown time.Duration
	// Timeout applies per HTTP request.
	Timeout time.Duration
}

// DefaultRetryPolicy mirrors the upstream's tolerated request pattern.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BackoffMin:        500 * time.Millisecond,
		BackoffMax:        8 * time.Second,
		RateLimitCooldown: 30 * time.Second,
		Timeout:           12 * time.Second,
	}
}

// backoff is the retryablehttp BackoffFunc: rate-limit rejections get the
// fixed cooldown, everything else the default exponential curve.
func (p RetryPolicy) backoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if sec, err := strconv.Atoi(s); err == nil && sec > 0 {
				return time.Duration(sec) * time.Second
			}
		}
		return p.RateLimitCooldown
	}
	return retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
}

// NewHTTPClient builds a retryablehttp client honouring the policy. The
// same client serves the quote endpoint and the holiday-schedule page.
func NewHTTPClient(policy RetryPolicy) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient.Timeout = policy.Timeout
	c.RetryMax = policy.MaxAttempts - 1
	c.RetryWaitMin = policy.BackoffMin
	c.RetryWaitMax = policy.BackoffMax
	c.Backoff = policy.backoff
	c.CheckRetry = retryablehttp.DefaultRetryPolicy
	c.Logger = nil
	return c
}
