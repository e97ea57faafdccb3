package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// releaseScript deletes the lock only while it still holds our token, so a
// worker whose lock expired cannot release a lock taken over by another.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CourseLocker is a SET NX PX lock per course.
type CourseLocker struct {
	cache *Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewCourseLocker creates a CourseLocker. A non-positive ttl uses TTLCourseLock.
func NewCourseLocker(cache *Cache, ttl time.Duration, log *zap.Logger) *CourseLocker {
	if ttl <= 0 {
		ttl = TTLCourseLock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CourseLocker{cache: cache, ttl: ttl, log: log}
}

// TryLock acquires the course lock or returns shared.ErrCourseLocked.
func (l *CourseLocker) TryLock(ctx context.Context, courseID string) (func(), error) {
	key := CourseLockKey(courseID)
	token := uuid.NewString()

	ok, err := l.cache.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, shared.ErrCourseLocked
	}

	return func() {
		// release must run even when the batch context was cancelled
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.cache.client, []string{key}, token).Err(); err != nil {
			l.log.Warn("failed to release course lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
