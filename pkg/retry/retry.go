// Package retry re-runs an operation with capped exponential backoff. The
// binaries use it to wait for Postgres and Redis during startup.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// Policy describes how often and how long to retry.
type Policy struct {
	// Attempts counts the first call; values below 1 mean one call.
	Attempts int
	// Base is the wait after the first failure; it doubles per attempt.
	Base time.Duration
	// Max caps a single wait.
	Max time.Duration
	// Jitter spreads each wait by up to ±Jitter of itself (0..1).
	Jitter float64
	// Notify, when set, is told about every failure that will be retried.
	Notify func(attempt int, err error, wait time.Duration)

	sleep func(ctx context.Context, d time.Duration) error
}

// Startup is the policy for dialing a backing service when a binary boots:
// one second apart at first, backing off to 15s, each retry logged.
func Startup(attempts int, log *zap.Logger, operation string) Policy {
	return Policy{
		Attempts: attempts,
		Base:     time.Second,
		Max:      15 * time.Second,
		Jitter:   0.2,
		Notify: func(attempt int, err error, wait time.Duration) {
			log.Warn("attempt failed, retrying",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt && (p.Max <= 0 || d < p.Max); i++ {
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts run
// out or ctx is done. The error returned is always fn's last error when fn
// ran at least once.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = wait
	}
	attempts := max(p.Attempts, 1)

	var last error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil && last != nil {
			return last
		}
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		}
		last = err
		if attempt >= attempts {
			return last
		}

		d := p.Backoff(attempt)
		if p.Notify != nil {
			p.Notify(attempt, err, d)
		}
		if sleep(ctx, d) != nil {
			return last
		}
	}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
