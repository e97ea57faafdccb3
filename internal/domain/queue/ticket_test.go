package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

func TestTicketIsIndividualCandidate(t *testing.T) {
	prefs := preference.Preferences{Days: preference.Weekdays}
	tk, err := NewTicket("t1", "c1", "u1", prefs)
	require.NoError(t, err)

	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tk.AssignQueuedAt(at)

	var c matching.Candidate = tk
	assert.Equal(t, matching.KindIndividual, c.Kind())
	assert.Equal(t, 1, c.Occupancy())
	assert.Equal(t, []string{"u1"}, c.Members())
	assert.Equal(t, at, c.QueuedAt())
	assert.Equal(t, prefs, c.Preferences())
}

func TestNewTicketValidation(t *testing.T) {
	_, err := NewTicket("", "c1", "u1", preference.Preferences{})
	assert.True(t, shared.IsValidation(err))

	_, err = NewTicket("t1", "c1", "u1", preference.Preferences{Days: 1 << 7})
	assert.True(t, shared.IsValidation(err))
}

func TestGroupTicketSnapshot(t *testing.T) {
	members := []string{"u1", "u2"}
	gt, err := NewGroupTicket("gt1", "c1", "g1", members, preference.Preferences{}, 4)
	require.NoError(t, err)

	members[0] = "mutated"
	assert.Equal(t, []string{"u1", "u2"}, gt.Members())
	assert.Equal(t, 2, gt.Occupancy())
	assert.Equal(t, 2, gt.OpenSeats())
	assert.Equal(t, matching.KindGroup, gt.Kind())

	_, err = NewGroupTicket("gt2", "c1", "g2", []string{"a", "b"}, preference.Preferences{}, 2)
	assert.ErrorIs(t, err, shared.ErrGroupAlreadyFull)

	_, err = NewGroupTicket("gt3", "c1", "g3", nil, preference.Preferences{}, 2)
	assert.True(t, shared.IsValidation(err))
}
