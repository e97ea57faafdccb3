package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

type transition struct{ from, to State }

func newTestBreaker(opts ...Option) (*CircuitBreaker, *time.Time, *[]transition) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var seen []transition
	opts = append([]Option{
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithOnStateChange(func(_ string, from, to State) { seen = append(seen, transition{from, to}) }),
	}, opts...)
	cb := New("test", opts...)
	cb.now = func() time.Time { return now }
	return cb, &now, &seen
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _, _ := newTestBreaker()
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb, now, seen := newTestBreaker()
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)

	*now = now.Add(time.Minute)
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, *seen)
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb, now, _ := newTestBreaker()
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)

	*now = now.Add(time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	ignored := errors.New("cache miss")
	cb, _, _ := newTestBreaker(WithIsFailure(func(err error) bool { return !errors.Is(err, ignored) }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return ignored })
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 5, cb.Counts().Successes)
	assert.Zero(t, cb.Counts().Failures)

	cb.Reset()
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestBreakerAdmitsOneProbeAtATime(t *testing.T) {
	cb, now, _ := newTestBreaker()
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)

	*now = now.Add(time.Minute)
	err := cb.Execute(ctx, func(ctx context.Context) error {
		inner := cb.Execute(ctx, succeed)
		assert.ErrorIs(t, inner, ErrProbeInFlight)
		assert.True(t, IsRejected(inner))
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerDropsResultsFromOlderState(t *testing.T) {
	cb, _, _ := newTestBreaker()
	ctx := context.Background()

	// a slow call started while closed finishes after another caller tripped
	// the breaker; its failure must not extend the open period
	err := cb.Execute(ctx, func(ctx context.Context) error {
		_ = cb.Execute(ctx, fail)
		_ = cb.Execute(ctx, fail)
		assert.Equal(t, StateOpen, cb.State())
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 0, cb.Counts().ConsecutiveFailures)
	assert.Equal(t, 3, cb.Counts().Failures)
}
