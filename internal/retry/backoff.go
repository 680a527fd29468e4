// Package retry wraps fallible operations with unbounded exponential backoff.
//
// The envelope never gives up: database reads and search-index upserts in
// this service are idempotent, so the only question is how long to wait
// between attempts, not whether to stop trying. Callers signal a fatal,
// non-retryable failure (bad SQL, bad config) by wrapping it with Permanent;
// anything else keeps retrying on the geometric schedule.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures the geometric backoff schedule:
//
//	t_i = min(StartSleep * Factor^i, BorderSleep)
//
// No jitter is applied (RandomizationFactor is pinned to zero) so the
// schedule is exactly reproducible in tests.
type Policy struct {
	StartSleep  time.Duration
	Factor      float64
	BorderSleep time.Duration
}

// DefaultPolicy returns the default schedule: 0.1s initial delay, x2 growth, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		StartSleep:  100 * time.Millisecond,
		Factor:      2,
		BorderSleep: 10 * time.Second,
	}
}

func (p Policy) expBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.StartSleep
	b.Multiplier = p.Factor
	b.MaxInterval = p.BorderSleep
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // unbounded: retries forever until success or a Permanent error

	return b
}

// Permanent marks err as non-retryable. The envelope surfaces it immediately
// instead of sleeping and retrying. Use it for programmer failures: bad SQL,
// invalid arguments, configuration errors.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return backoff.Permanent(err)
}

// Do repeats fn under the geometric backoff schedule described by policy
// until fn returns nil or a Permanent error, or ctx is cancelled.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	return backoff.Retry(fn, backoff.WithContext(policy.expBackoff(), ctx))
}

// NextDelay returns the i-th sleep duration the policy would produce,
// t_i = min(StartSleep * Factor^i, BorderSleep). Exposed for tests that
// assert on the exact schedule rather than on wall-clock retries.
func (p Policy) NextDelay(attempt int) time.Duration {
	delay := float64(p.StartSleep)
	for i := 0; i < attempt; i++ {
		delay *= p.Factor
	}

	if d := time.Duration(delay); d < p.BorderSleep {
		return d
	}

	return p.BorderSleep
}
