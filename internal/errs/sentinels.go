// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Access-control taxonomy. Each maps to a stable wire code at the transport layer.
var (
	// ErrInvalidRequest indicates a malformed call (missing parameter, bad bearer header).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidClient indicates an unknown client, a bad secret, or a client that is not active.
	ErrInvalidClient = errors.New("invalid client")

	// ErrInvalidScope indicates a requested scope the client may not hold.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidToken indicates a missing, expired or revoked token, or a suspended owner.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInsufficientScope indicates a valid token lacking a required capability.
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrRateLimited indicates the caller's budget is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden indicates a cross-tenant access attempt.
	ErrForbidden = errors.New("forbidden")
)

// Storage-level sentinels.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indicates a state transition that is not permitted (e.g. reactivating a revoked client).
	ErrConflict = errors.New("conflict")
)

// RateLimitError carries a retry-after hint and unwraps to ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

// Unwrap makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RateLimited builds a RateLimitError.
func RateLimited(retryAfter time.Duration) error {
	return &RateLimitError{RetryAfter: retryAfter}
}

// RetryAfter extracts the retry-after hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
