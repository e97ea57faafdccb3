package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/circuitbreaker"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheFromClient(client), mr
}

type countingDirectory struct {
	mu    sync.Mutex
	calls int
	users map[string]*identity.User
}

func (d *countingDirectory) GetUser(_ context.Context, id string) (*identity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	u, ok := d.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *countingDirectory) GetName(ctx context.Context, id string) (string, error) {
	u, err := d.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func TestCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		A string `json:"a"`
	}
	require.NoError(t, c.Set(ctx, "k", payload{A: "x"}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "x", got.A)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)

	assert.ErrorIs(t, c.Set(ctx, "", payload{}, 0), ErrInvalidArgument)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), ErrInvalidArgument)
	assert.ErrorIs(t, c.Set(ctx, "k", payload{}, -time.Second), ErrInvalidArgument)
	assert.Equal(t, "groupmatch:user:u1", UserKey("u1"))
	assert.Equal(t, "groupmatch:lock:course:c1", CourseLockKey("c1"))
}

func TestCourseLocker_ExclusiveUntilReleased(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	locker := NewCourseLocker(c, time.Minute, nil)

	release, err := locker.TryLock(ctx, "c1")
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "c1")
	assert.ErrorIs(t, err, shared.ErrCourseLocked)

	other, err := locker.TryLock(ctx, "c2")
	require.NoError(t, err)
	other()

	release()
	again, err := locker.TryLock(ctx, "c1")
	require.NoError(t, err)
	again()
}

func TestCourseLocker_ExpiredLockIsNotStolenBack(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	locker := NewCourseLocker(c, time.Second, nil)

	stale, err := locker.TryLock(ctx, "c1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	current, err := locker.TryLock(ctx, "c1")
	require.NoError(t, err)

	// the first holder's release must not drop the new holder's lock
	stale()
	assert.True(t, mr.Exists(CourseLockKey("c1")))

	current()
	assert.False(t, mr.Exists(CourseLockKey("c1")))
}

func TestUserCache_ReadThrough(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	dir := &countingDirectory{users: map[string]*identity.User{
		"u1": {ID: "u1", Name: "Ada"},
	}}
	uc := NewUserCache(c, dir, time.Minute, nil)

	name, err := uc.GetName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	u, err := uc.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, 1, dir.calls)

	dir.users["u1"].Name = "Ada L."
	require.NoError(t, uc.Invalidate(ctx, "u1"))
	name, err = uc.GetName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", name)
	assert.Equal(t, 2, dir.calls)

	_, err = uc.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestUserCache_DegradesWhenRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	dir := &countingDirectory{users: map[string]*identity.User{"u1": {ID: "u1", Name: "Ada"}}}
	uc := NewUserCache(c, dir, time.Minute, nil)

	mr.Close()
	u, err := uc.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)

	_, err = uc.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, uc.BreakerState())
	assert.Equal(t, 2, dir.calls)
}
