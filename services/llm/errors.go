package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

var (
	// ErrEmptyResponse is returned by a model call that produced no text. It counts as a failed attempt.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrExhausted is returned once every model and attempt failed.
	ErrExhausted = errors.New("all models failed")
)

// RateLimitError means the provider refused the call for quota reasons (429 / RESOURCE_EXHAUSTED).
type RateLimitError struct {
	Model string
	Err   error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s: %v", e.Model, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// AttemptError records a single failed call.
type AttemptError struct {
	Model   string
	Attempt int
	Err     error
	Elapsed time.Duration
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s attempt %d: %v", e.Model, e.Attempt, e.Err)
}

func isRateLimit(err error) bool {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED") {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
