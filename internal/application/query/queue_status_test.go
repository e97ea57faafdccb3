package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/domain/group"
	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/queue"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/internal/testutil"
)

var ctx = context.Background()

// partialDirectory hides one user so name fallback can be observed.
type partialDirectory struct {
	identity.Directory
	hidden string
}

func (d partialDirectory) GetName(ctx context.Context, id string) (string, error) {
	if id == d.hidden {
		return "", shared.ErrUserNotFound
	}
	return d.Directory.GetName(ctx, id)
}

func TestQueueStatusOrdersByWait(t *testing.T) {
	store := testutil.NewStore(t)
	fx := testutil.NewFixtures(t, store)
	repos := store.Repositories()

	c := fx.Course(3)
	a := fx.User(testutil.Prefs(preference.Weekdays))
	b := fx.User(testutil.Prefs(preference.Weekdays))
	m := fx.User(testutil.Prefs(preference.Weekdays))

	ta, err := queue.NewTicket(testutil.NewID(), c.ID, a.ID, a.Preferences)
	require.NoError(t, err)
	require.NoError(t, repos.Tickets.Enqueue(ctx, ta))

	g, err := group.NewGroup(testutil.NewID(), c.ID, 3, m.Preferences, testutil.Epoch)
	require.NoError(t, err)
	require.NoError(t, g.AddMember(m.ID, testutil.Epoch))
	require.NoError(t, repos.Groups.Create(ctx, g))
	gt, err := queue.NewGroupTicket(testutil.NewID(), c.ID, g.ID(), g.MemberIDs(), g.Preferences(), g.Capacity())
	require.NoError(t, err)
	require.NoError(t, repos.GroupTickets.Enqueue(ctx, gt))

	tb, err := queue.NewTicket(testutil.NewID(), c.ID, b.ID, b.Preferences)
	require.NoError(t, err)
	require.NoError(t, repos.Tickets.Enqueue(ctx, tb))

	now := testutil.Epoch.Add(time.Hour)
	h := NewQueueStatusHandler(store, partialDirectory{Directory: repos.Users, hidden: b.ID},
		func() time.Time { return now }, nil)

	dto, err := h.Handle(ctx, QueueStatusQuery{CourseID: c.ID})
	require.NoError(t, err)

	assert.Equal(t, c.Name, dto.CourseName)
	assert.Equal(t, 2, dto.Individuals)
	assert.Equal(t, 1, dto.Groups)
	assert.Equal(t, now, dto.GeneratedAt)
	require.Len(t, dto.Entries, 3)

	first, second, third := dto.Entries[0], dto.Entries[1], dto.Entries[2]
	assert.Equal(t, ta.ID(), first.TicketID)
	assert.Equal(t, matching.KindIndividual, first.Kind)
	assert.Equal(t, []string{a.Name}, first.MemberNames)
	assert.Equal(t, 2, first.OpenSeats)
	assert.Positive(t, first.WaitSeconds)

	assert.Equal(t, gt.ID(), second.TicketID)
	assert.Equal(t, matching.KindGroup, second.Kind)
	assert.Equal(t, g.ID(), second.GroupID)
	assert.Equal(t, 2, second.OpenSeats)

	assert.Equal(t, tb.ID(), third.TicketID)
	assert.Equal(t, []string{b.ID}, third.MemberNames)
	assert.GreaterOrEqual(t, first.WaitSeconds, third.WaitSeconds)
}

func TestQueueStatusErrors(t *testing.T) {
	store := testutil.NewStore(t)
	h := NewQueueStatusHandler(store, nil, shared.SystemClock, nil)

	_, err := h.Handle(ctx, QueueStatusQuery{})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, QueueStatusQuery{CourseID: testutil.NewID()})
	assert.True(t, shared.IsNotFound(err))
}
