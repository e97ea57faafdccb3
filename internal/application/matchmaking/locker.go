package matchmaking

import (
	"context"
	"sync"

	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// CourseLocker serialises batches for one course across workers.
type CourseLocker interface {
	// TryLock acquires the course lock without waiting. It returns
	// shared.ErrCourseLocked when the lock is held elsewhere. The returned
	// release func is safe to call once.
	TryLock(ctx context.Context, courseID string) (release func(), err error)
}

// LocalLocker is an in-process CourseLocker for single-replica deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock implements CourseLocker.
func (l *LocalLocker) TryLock(_ context.Context, courseID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[courseID]; busy {
		return nil, shared.ErrCourseLocked
	}
	l.held[courseID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, courseID)
			l.mu.Unlock()
		})
	}, nil
}
