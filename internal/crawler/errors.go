package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrInvalidSeed is returned when the seed reference cannot be normalized.
	ErrInvalidSeed = errors.New("crawler: invalid seed reference")
	// ErrNotFound is returned when a stored article or summary does not exist.
	ErrNotFound = errors.New("crawler: not found")
	// ErrInvalidConfig is returned when a crawl configuration fails validation.
	ErrInvalidConfig = errors.New("crawler: invalid config")
)

// FetchError describes a failed page retrieval. StatusCode is zero for
// transport failures and timeouts.
type FetchError struct {
	Key        CanonicalKey
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *FetchError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}
