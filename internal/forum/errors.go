package forum

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoData marks an article page that lacks the required metadata. Callers
// skip the page; it is not a failure of the surrounding board pass.
var ErrNoData = errors.New("article page has no data")

// ErrDisallowed marks a URL the host's robots.txt forbids.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// RetryableError is implemented by errors that signal rate limiting or
// transient overload of a dependency.
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable reports whether any error in err's chain is retryable.
func IsRetryable(err error) bool {
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}

// FetchError describes a failed page fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable is true for the transient server statuses the fetcher retries.
func (e *FetchError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RateLimitError wraps a dependency error caused by throttling or overload.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Err.Error() }

func (e *RateLimitError) Unwrap() error { return e.Err }

// Retryable always returns true.
func (e *RateLimitError) Retryable() bool { return true }
