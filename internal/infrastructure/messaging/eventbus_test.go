package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/domain/shared"
	rediscache "github.com/studyhub/groupmatch/internal/infrastructure/persistence/redis"
)

type collector struct {
	mu     sync.Mutex
	events []shared.Event
}

func (c *collector) handle(e shared.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) at(i int) shared.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[i]
}

type countingObserver struct {
	mu       sync.Mutex
	events   int
	failures int
}

func (o *countingObserver) ObserveEvent(shared.EventType) {
	o.mu.Lock()
	o.events++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveHandler(_ shared.EventType, _ time.Duration, err error) {
	o.mu.Lock()
	if err != nil {
		o.failures++
	}
	o.mu.Unlock()
}

func syncBus(obs Observer) *InMemoryEventBus {
	return NewInMemoryEventBus(Config{Observer: obs})
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := syncBus(nil)
	filled, all := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(shared.EventGroupFilled, filled.handle))
	require.NoError(t, bus.SubscribeAll(all.handle))

	require.NoError(t, bus.Publish(shared.NewGroupFilledEvent("g1", "c1")))
	require.NoError(t, bus.Publish(shared.NewGroupMemberAddedEvent("g1", "u1")))

	assert.Equal(t, 1, filled.len())
	assert.Equal(t, 2, all.len())
	assert.Equal(t, int64(2), bus.Stats().Published)
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	obs := &countingObserver{}
	bus := syncBus(obs)
	after := &collector{}
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("nope") }))
	require.NoError(t, bus.SubscribeAll(after.handle))

	require.NoError(t, bus.Publish(shared.NewGroupFilledEvent("g1", "c1")))

	assert.Equal(t, 1, after.len())
	assert.Equal(t, int64(2), bus.Stats().HandlerFailure)
	assert.Equal(t, 1, obs.events)
	assert.Equal(t, 2, obs.failures)
}

func TestInMemoryEventBus_AsyncDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(Config{AsyncMode: true, WorkerPoolSize: 2})
	c := &collector{}
	require.NoError(t, bus.SubscribeAll(c.handle))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(shared.NewGroupMemberAddedEvent("g1", "u")))
	}
	require.NoError(t, bus.Close())
	assert.Equal(t, 10, c.len())

	assert.ErrorIs(t, bus.Publish(shared.NewGroupFilledEvent("g1", "c1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(c.handle), ErrEventBusClosed)
}

func TestEncodeDecode(t *testing.T) {
	ev := shared.NewGroupDisbandedEvent("g1", "c1", []string{"u1", "u2"})
	data, err := Encode(ev, "inst-a")
	require.NoError(t, err)

	got, source, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "inst-a", source)
	assert.Equal(t, shared.EventGroupDisbanded, got.EventType())
	assert.Equal(t, "g1", got.AggregateID())
	assert.Equal(t, "c1", got.Payload()["course_id"])
	assert.Equal(t, []interface{}{"u1", "u2"}, got.Payload()["former_member_ids"])

	_, _, err = Decode([]byte(`{"id":"x"}`))
	assert.Error(t, err)
}

func TestRedisEventBus_ForwardsAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newCache := func() *rediscache.Cache {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return rediscache.NewCacheFromClient(client)
	}
	ctx := context.Background()

	a, err := NewRedisEventBus(ctx, RedisBusConfig{Cache: newCache(), InstanceID: "a"})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	b, err := NewRedisEventBus(ctx, RedisBusConfig{Cache: newCache(), InstanceID: "b"})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	onA, onB := &collector{}, &collector{}
	require.NoError(t, a.SubscribeAll(onA.handle))
	require.NoError(t, b.Subscribe(shared.EventGroupFilled, onB.handle))

	require.NoError(t, a.Publish(shared.NewGroupFilledEvent("g1", "c1")))

	require.Eventually(t, func() bool { return onB.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "g1", onB.at(0).AggregateID())

	// a's own copy from the channel is skipped
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, onA.len())
}
