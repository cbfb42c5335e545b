package fetch

import (
	"fmt"
	"time"
)

// TimeoutError is returned when a hop exceeds its deadline.
type TimeoutError struct {
	URL   string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Request timed out after %s.", e.After)
}

// Timeout lets callers treat this like a net.Error.
func (e *TimeoutError) Timeout() bool { return true }

// TooLargeError is returned when a body exceeds the byte cap.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	if e.Limit%1_000_000 == 0 {
		return fmt.Sprintf("Response too large (limit %dMB).", e.Limit/1_000_000)
	}
	return fmt.Sprintf("Response too large (limit %d bytes).", e.Limit)
}

// TooManyRedirectsError is returned when the chain exceeds MaxRedirects.
type TooManyRedirectsError struct {
	Max int
}

func (e *TooManyRedirectsError) Error() string {
	return "Too many redirects."
}
