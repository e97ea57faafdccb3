package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDown = errors.New("connection refused")

func instant(attempts int) Policy {
	return Policy{
		Attempts: attempts,
		Base:     time.Millisecond,
		sleep:    func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	var waits []time.Duration
	p := instant(4)
	p.Notify = func(_ int, _ error, d time.Duration) { waits = append(waits, d) }

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errDown
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), instant(3), func(context.Context) error {
		calls++
		return errDown
	})
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 3, calls)
}

func TestDoCallsOnceWithoutAttempts(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), instant(0), func(context.Context) error {
		calls++
		return errDown
	})
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	bad := errors.New("bad credentials")
	calls := 0
	err := Do(context.Background(), instant(5), func(context.Context) error {
		calls++
		return Permanent(bad)
	})
	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
	assert.False(t, IsPermanent(err))
	assert.True(t, IsPermanent(Permanent(bad)))
	assert.NoError(t, Permanent(nil))
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, instant(5), func(context.Context) error {
		calls++
		cancel()
		return errDown
	})
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 1, calls)
}

func TestBackoffIsCapped(t *testing.T) {
	p := Policy{Base: time.Second, Max: 3 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 3*time.Second, p.Backoff(5))
	assert.Equal(t, 3*time.Second, p.Backoff(64))
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	p := Policy{Base: time.Second, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestValue(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), instant(2), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "partial", errDown
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = Value(context.Background(), instant(1), func(context.Context) (string, error) {
		return "partial", errDown
	})
	assert.ErrorIs(t, err, errDown)
	assert.Empty(t, v)
}

func TestStartupPolicy(t *testing.T) {
	p := Startup(7, zap.NewNop(), "postgres connect")
	assert.Equal(t, 7, p.Attempts)
	assert.Equal(t, time.Second, p.Base)
	assert.Equal(t, 15*time.Second, p.Max)
	require.NotNil(t, p.Notify)
	p.Notify(1, errDown, time.Second)
}
