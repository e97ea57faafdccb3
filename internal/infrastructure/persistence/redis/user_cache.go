package redis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/pkg/circuitbreaker"
)

// UserCache is a read-through identity.Directory. Cache failures degrade to
// the backing directory and are only logged; after repeated failures the
// breaker opens and Redis is skipped until it cools down.
type UserCache struct {
	cache   *Cache
	backing identity.Directory
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *zap.Logger
}

// NewUserCache creates a UserCache. A non-positive ttl uses TTLUserCache.
func NewUserCache(cache *Cache, backing identity.Directory, ttl time.Duration, log *zap.Logger) *UserCache {
	if ttl <= 0 {
		ttl = TTLUserCache
	}
	if log == nil {
		log = zap.NewNop()
	}
	breaker := circuitbreaker.New("redis-user-cache",
		circuitbreaker.WithFailureThreshold(3),
		circuitbreaker.WithSuccessThreshold(1),
		circuitbreaker.WithTimeout(15*time.Second),
		circuitbreaker.WithIsFailure(func(err error) bool { return !errors.Is(err, ErrCacheMiss) }),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("user cache breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		}),
	)
	return &UserCache{cache: cache, backing: backing, ttl: ttl, breaker: breaker, log: log}
}

// GetUser returns the cached entry or loads it from the backing directory.
func (u *UserCache) GetUser(ctx context.Context, id string) (*identity.User, error) {
	var cached identity.User
	err := u.breaker.Execute(ctx, func(ctx context.Context) error {
		return u.cache.Get(ctx, UserKey(id), &cached)
	})
	switch {
	case err == nil:
		return &cached, nil
	case errors.Is(err, ErrCacheMiss), circuitbreaker.IsRejected(err):
	default:
		u.log.Warn("user cache read failed", zap.String("user_id", id), zap.Error(err))
	}

	usr, err := u.backing.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	err = u.breaker.Execute(ctx, func(ctx context.Context) error {
		return u.cache.Set(ctx, UserKey(id), usr, u.ttl)
	})
	if err != nil && !circuitbreaker.IsRejected(err) {
		u.log.Warn("user cache write failed", zap.String("user_id", id), zap.Error(err))
	}
	return usr, nil
}

// GetName resolves a display name through GetUser.
func (u *UserCache) GetName(ctx context.Context, id string) (string, error) {
	usr, err := u.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return usr.Name, nil
}

// Invalidate drops cached entries, e.g. after a directory sync.
func (u *UserCache) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, UserKey(id))
	}
	return u.cache.Delete(ctx, keys...)
}

// BreakerState exposes the cache breaker state for health reporting.
func (u *UserCache) BreakerState() circuitbreaker.State {
	return u.breaker.State()
}

var _ identity.Directory = (*UserCache)(nil)
