// Package retry provides the single bounded-retry policy applied to
// intake's external calls (retrieval, generation, ticket creation).
// Delays grow exponentially from BaseDelay up to MaxDelay; an error
// wrapped with Permanent stops the attempts immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds the attempts for one external call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default matches the configured defaults: 3 attempts, 1s base, 10s cap.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

// Permanent marks err as non-retryable; Do returns it without further
// attempts. Use for payload rejections and other deterministic failures.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy until it succeeds, exhausts MaxAttempts,
// returns a permanent error, or ctx is done. The zero-value result and
// the last error are returned on failure.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	)
}
