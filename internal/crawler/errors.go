package crawler

import (
	"errors"
	"fmt"
)

// Fetch error kinds. A *FetchError unwraps to exactly one of these.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrServerError = errors.New("server error")
	ErrFetchFailed = errors.New("fetch failed")
)

// Run-level errors.
var (
	ErrInterrupted       = errors.New("crawl interrupted")
	ErrNothingDiscovered = errors.New("nothing discovered from start url")
	ErrCorruptState      = errors.New("crawl state file is corrupt")
	ErrRobotsDisallowed  = errors.New("disallowed by robots.txt")
)

// FetchError describes a failed GET.
type FetchError struct {
	URL        string
	StatusCode int
	Kind       error
	Cause      error
}

// NewStatusError classifies a non-2xx response.
func NewStatusError(url string, status int) *FetchError {
	kind := ErrFetchFailed
	switch {
	case status == 429:
		kind = ErrRateLimited
	case status >= 500:
		kind = ErrServerError
	}
	return &FetchError{URL: url, StatusCode: status, Kind: kind}
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Cause != nil:
		return fmt.Sprintf("%v: %s: status %d: %v", e.Kind, e.URL, e.StatusCode, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: %s: status %d", e.Kind, e.URL, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.URL, e.Cause)
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.URL)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError)
}
