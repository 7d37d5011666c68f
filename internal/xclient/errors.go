package xclient

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// RateLimitError is a 429-class response. Reset carries the platform's
// reset signal when the header was present; callers schedule their own
// backoff from it.
type RateLimitError struct {
	StatusCode int
	Reset      time.Time
	Remaining  int
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return fmt.Sprintf("x api rate limited (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("x api rate limited (status %d), reset %s", e.StatusCode, e.Reset.UTC().Format(time.RFC3339))
}

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api status %d: %s", e.StatusCode, e.Body)
}

// statusError turns a non-2xx response into the typed error the
// poller's backoff policy keys on. Consumes the body.
func statusError(resp *http.Response) error {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		e := &RateLimitError{StatusCode: resp.StatusCode, Remaining: -1}
		if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
			if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
				e.Reset = time.Unix(secs, 0)
			}
		}
		if e.Reset.IsZero() {
			// auth endpoints signal the 24h user cap with a different header
			if v := resp.Header.Get("x-user-limit-24hour-reset"); v != "" {
				if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
					e.Reset = time.Unix(secs, 0)
				}
			}
		}
		if v := resp.Header.Get("x-rate-limit-remaining"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				e.Remaining = n
			}
		}
		return e
	}
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{StatusCode: resp.StatusCode, Body: string(buf)}
}
