// Package testutil provides SQLite-backed stores and seed data for tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/course"
	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/infrastructure/persistence/sqlite"
)

// Epoch is the base time of the fixture clock.
var Epoch = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

// NewStore opens a fresh SQLite store in a temp dir. Timestamps it assigns
// advance by one second per call so queue order is deterministic.
func NewStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.SetClock(StepClock(Epoch, time.Second))
	return s
}

// StepClock returns a clock that advances by step on every call.
func StepClock(start time.Time, step time.Duration) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * step)
	}
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// Prefs returns English / online / evening preferences for the given days.
func Prefs(days preference.DaySet) preference.Preferences {
	return preference.Preferences{
		Languages:    preference.Languages(preference.English),
		Availability: preference.Evening,
		Days:         days,
		Locations:    preference.Locations(preference.Online),
	}
}

// Fixtures seeds directory data into a store.
type Fixtures struct {
	t     *testing.T
	store uow.Store
	seq   int
}

// NewFixtures binds fixtures to a store of either backend.
func NewFixtures(t *testing.T, store uow.Store) *Fixtures {
	return &Fixtures{t: t, store: store}
}

// Course creates a course with the given group size and optional roster.
func (f *Fixtures) Course(groupSize int, roster ...string) *course.Course {
	f.t.Helper()
	f.seq++
	c := &course.Course{
		ID:        NewID(),
		Name:      fmt.Sprintf("Course %d", f.seq),
		GroupSize: groupSize,
		Roster:    roster,
	}
	require.NoError(f.t, f.store.Repositories().Courses.Save(context.Background(), c))
	return c
}

// CustomCourse creates a course that allows custom group sizes.
func (f *Fixtures) CustomCourse(groupSize int) *course.Course {
	f.t.Helper()
	f.seq++
	c := &course.Course{
		ID:               NewID(),
		Name:             fmt.Sprintf("Course %d", f.seq),
		GroupSize:        groupSize,
		AllowCustomSizes: true,
	}
	require.NoError(f.t, f.store.Repositories().Courses.Save(context.Background(), c))
	return c
}

// User creates a user with the given global preferences.
func (f *Fixtures) User(prefs preference.Preferences) *identity.User {
	f.t.Helper()
	f.seq++
	u := &identity.User{
		ID:          NewID(),
		Name:        fmt.Sprintf("Student %d", f.seq),
		Email:       fmt.Sprintf("student%d@example.edu", f.seq),
		Preferences: prefs,
	}
	require.NoError(f.t, f.store.Repositories().Users.Save(context.Background(), u))
	return u
}
