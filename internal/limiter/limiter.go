// Package limiter contains the per-client request limiter and the
// brute-force lockout guarding the token endpoint.
package limiter

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// RateLimiter admits requests against a per-client budget.
type RateLimiter interface {
	// Allow consumes one slot of clientID's budget of limit requests per window.
	// A denied call consumes nothing.
	Allow(clientID uuid.UUID, limit int) Decision
}

// Lockout controls secret-guessing attempts and temporary blocks.
type Lockout interface {
	// Allow reports whether an attempt is currently allowed and optional retry-after.
	Allow(ctx context.Context, clientID string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful authentication.
	Success(ctx context.Context, clientID string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, clientID string, ipHash []byte) (bool, time.Duration, error)
}

// Nop is a Lockout that never blocks.
type Nop struct{}

// Allow always allows.
func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}

// Success does nothing.
func (Nop) Success(context.Context, string, []byte) error { return nil }

// Failure never blocks.
func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
