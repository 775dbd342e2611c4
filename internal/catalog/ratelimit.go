package catalog

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is a failed Spotify response with its HTTP status.
type StatusError struct {
	Status            int
	RetryAfterSeconds int // 0 when the response carried no Retry-After
	Err               error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("spotify: HTTP %d", e.Status)
	if e.RetryAfterSeconds > 0 {
		msg += fmt.Sprintf(" (retry after %ds)", e.RetryAfterSeconds)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.Status }

// RetryAfter returns the server-provided wait, if any.
func (e *StatusError) RetryAfter() (time.Duration, bool) {
	if e.RetryAfterSeconds <= 0 {
		return 0, false
	}
	return time.Duration(e.RetryAfterSeconds) * time.Second, true
}

// rateLimitTransport turns 429 responses into *StatusError so the
// Retry-After header survives the Spotify client's error decoding.
type rateLimitTransport struct {
	base http.RoundTripper
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()

	statusErr := &StatusError{
		Status:            resp.StatusCode,
		RetryAfterSeconds: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		statusErr.Err = errors.New(msg)
	}
	return nil, statusErr
}

// withRateLimits returns a copy of c whose transport reports 429 responses
// as errors.
func withRateLimits(c *http.Client) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	wrapped := *c
	wrapped.Transport = &rateLimitTransport{base: base}
	return &wrapped
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(secs, 0)
	}
	if at, err := http.ParseTime(v); err == nil {
		if secs := int(time.Until(at).Round(time.Second) / time.Second); secs > 0 {
			return secs
		}
	}
	return 0
}
