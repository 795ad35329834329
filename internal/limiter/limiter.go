// Package limiter provides login rate limiting with a sliding window and
// temporary lockout, keyed by (email, client-IP hash).
package limiter

import (
	"context"
	"time"
)

// Limiter gates login attempts.
type Limiter interface {
	// Allow reports whether a login attempt is currently permitted and,
	// when blocked, how long until the lock expires.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt; returns true when the failure
	// tripped the lockout threshold.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Unlimited is a pass-through limiter for the in-memory development mode.
type Unlimited struct{}

// Allow always permits.
func (Unlimited) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}

// Success is a no-op.
func (Unlimited) Success(context.Context, string, []byte) error { return nil }

// Failure never blocks.
func (Unlimited) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
