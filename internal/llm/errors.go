package llm

import (
	"errors"
	"fmt"
)

// RateLimitError is returned when the provider rejects a call because of its rate limit.
type RateLimitError struct {
	Status  int
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited status=%d: %s", e.Status, e.Message)
}

// StatusError is any other non-success response from the provider.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion failed status=%d body=%s", e.Status, e.Body)
}

// CompletionError is returned by Client.Complete once the call has failed for good.
type CompletionError struct {
	Attempts int
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func IsRateLimited(err error) bool {
	var rateLimited *RateLimitError
	return errors.As(err, &rateLimited)
}
