package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrEmptyResponse is returned when a provider answers with no usable content.
var ErrEmptyResponse = errors.New("empty response from provider")

// RateLimitError is returned for HTTP 429 responses.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// StatusError carries a non-2xx HTTP status from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether err is worth another attempt: rate limits,
// server errors, empty responses and transport failures are; client errors
// and cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusRequestTimeout
	}
	return true
}

// withRetry runs fn with exponential backoff, honoring RateLimitError hints.
// It returns the number of attempts made.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	count := 0
	err := retry.Do(
		func() error {
			count++
			return fn()
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(base),
		retry.MaxDelay(30*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			var rl *RateLimitError
			if errors.As(err, &rl) && rl.RetryAfter > 0 {
				return rl.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
	)
	return count, err
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
