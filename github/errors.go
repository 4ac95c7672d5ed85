package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client errors
var (
	ErrRequestFailed = fmt.Errorf("request failed")
	ErrDecodeFailed  = fmt.Errorf("failed to decode response")
	ErrRateLimited   = fmt.Errorf("rate limited")
)

// ResponseError is returned when the API answers with a non-2xx status.
type ResponseError struct {
	StatusCode int
	Message    string
	RateLimit  RateLimit
	// RetryAfter is how long the caller should wait before trying again.
	// Zero unless the response is rate limited.
	RetryAfter time.Duration
}

func (e *ResponseError) Error() string {
	if e.IsRateLimited() {
		if e.RateLimit.Known {
			return fmt.Sprintf("rate limited (status %d, resets %s): %s",
				e.StatusCode, e.RateLimit.Reset.UTC().Format(time.RFC3339), e.Message)
		}
		return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether the response was a primary or secondary rate limit
func (e *ResponseError) IsRateLimited() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return e.RateLimit.Exhausted() || strings.Contains(strings.ToLower(e.Message), "rate limit")
	}
	return false
}

// Is lets errors.Is(err, ErrRateLimited) match rate-limited responses.
func (e *ResponseError) Is(target error) bool {
	return target == ErrRateLimited && e.IsRateLimited()
}

// AsResponseError unwraps err into a *ResponseError if it holds one.
func AsResponseError(err error) (*ResponseError, bool) {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr, true
	}
	return nil, false
}
