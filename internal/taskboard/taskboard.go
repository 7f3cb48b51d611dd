// Package taskboard defines the narrow interface to the external task-board
// service and its error taxonomy. The campaign core depends only on the
// Board interface, never on a concrete transport.
package taskboard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRequestInvalid indicates a permanent rejection (malformed request,
// permission denial). Never retried.
var ErrRequestInvalid = errors.New("task board rejected the request")

// RateLimitedError signals the board's rate limit was hit. Transient; the
// rate limiter retries these up to its attempt bound.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("task board rate limited (retry after %s)", e.RetryAfter)
	}
	return "task board rate limited"
}

// IsRateLimited reports whether err is a rate-limit signal.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// Board is the external task-board service consumed by the dispatcher.
type Board interface {
	// CreateTicket creates a work item and returns its opaque id.
	// Fails with *RateLimitedError or ErrRequestInvalid.
	CreateTicket(ctx context.Context, projectID, name, description string) (string, error)
}
