package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

var now = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

func eventTypes(events []shared.Event) []shared.EventType {
	out := make([]shared.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

func newGroup(t *testing.T, capacity int) *Group {
	t.Helper()
	g, err := NewGroup("g1", "c1", capacity, preference.Preferences{Days: preference.Weekdays}, now)
	require.NoError(t, err)
	return g
}

func TestAddMemberLatchesCompletionOnce(t *testing.T) {
	g := newGroup(t, 2)

	require.NoError(t, g.AddMember("u1", now))
	assert.False(t, g.IsComplete())
	require.NoError(t, g.AddMember("u2", now))
	assert.True(t, g.IsComplete())
	assert.Equal(t, []shared.EventType{
		shared.EventGroupMemberAdded,
		shared.EventGroupMemberAdded,
		shared.EventGroupFilled,
	}, eventTypes(g.PullEvents()))

	// drop below capacity and refill: latch stays set, no second GroupFilled
	require.NoError(t, g.RemoveMember("u1", now))
	assert.True(t, g.IsComplete())
	require.NoError(t, g.AddMember("u3", now))
	assert.Equal(t, []shared.EventType{
		shared.EventGroupMemberLeft,
		shared.EventGroupMemberAdded,
	}, eventTypes(g.PullEvents()))
	assert.Equal(t, []string{"u2", "u3"}, g.MemberIDs())
}

func TestAddMemberRejectsOverflowAndDuplicates(t *testing.T) {
	g := newGroup(t, 2)
	require.NoError(t, g.AddMember("u1", now))

	assert.ErrorIs(t, g.AddMember("u1", now), shared.ErrDuplicateMember)
	require.NoError(t, g.AddMember("u2", now))
	err := g.AddMember("u3", now)
	assert.ErrorIs(t, err, shared.ErrGroupFull)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, 2, g.Size())

	assert.ErrorIs(t, newGroup(t, 3).CanAdmit([]string{"a", "a"}), shared.ErrDuplicateMember)
}

func TestRemoveLastMemberDisbands(t *testing.T) {
	g := newGroup(t, 3)
	require.NoError(t, g.AddMember("u1", now))
	g.PullEvents()

	require.NoError(t, g.RemoveMember("u1", now))
	assert.True(t, g.IsDisbanded())

	events := g.PullEvents()
	require.Len(t, events, 2)
	disbanded, ok := events[1].(shared.GroupDisbandedEvent)
	require.True(t, ok)
	assert.Equal(t, "c1", disbanded.CourseID)
	assert.Equal(t, []string{"u1"}, disbanded.FormerMemberIDs)

	assert.ErrorIs(t, g.AddMember("u2", now), shared.ErrGroupDisbanded)
	assert.ErrorIs(t, g.RemoveMember("u1", now), shared.ErrGroupDisbanded)
}

func TestRemoveUnknownMember(t *testing.T) {
	g := newGroup(t, 3)
	assert.True(t, shared.IsNotFound(g.RemoveMember("ghost", now)))
}

func TestDisbandReportsAllMembers(t *testing.T) {
	g := newGroup(t, 3)
	require.NoError(t, g.AddMember("u1", now))
	require.NoError(t, g.AddMember("u2", now))
	g.PullEvents()

	require.NoError(t, g.Disband(now))
	events := g.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"u1", "u2"}, events[0].(shared.GroupDisbandedEvent).FormerMemberIDs)
}

func TestSnapshotRoundTripKeepsLatch(t *testing.T) {
	g := newGroup(t, 2)
	require.NoError(t, g.AddMember("u1", now))
	require.NoError(t, g.AddMember("u2", now))

	restored := Restore(g.Snapshot())
	assert.True(t, restored.IsComplete())
	assert.Equal(t, g.MemberIDs(), restored.MemberIDs())
	assert.Empty(t, restored.PullEvents())
}

func TestNewGroupRejectsTinyCapacity(t *testing.T) {
	_, err := NewGroup("g", "c", 1, preference.Preferences{}, now)
	assert.ErrorIs(t, err, shared.ErrInvalidCapacity)
}
