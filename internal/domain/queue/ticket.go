// Package queue models the two kinds of matchmaking queue entries and the
// repository contracts that persist them.
package queue

import (
	"time"

	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// INDIVIDUAL TICKET
// ══════════════════════════════════════════════════════════════════════════════

// Ticket is one person's request to be placed in a group for a course.
type Ticket struct {
	id       string
	courseID string
	userID   string
	prefs    preference.Preferences
	queuedAt time.Time
}

var _ matching.Candidate = (*Ticket)(nil)

// NewTicket creates a ticket carrying a preference snapshot. QueuedAt is left
// zero until the repository assigns it.
func NewTicket(id, courseID, userID string, prefs preference.Preferences) (*Ticket, error) {
	if id == "" || courseID == "" || userID == "" {
		return nil, shared.NewDomainError("queue", "NewTicket", shared.ErrEmptyValue, "ticket id, course and user are required")
	}
	if err := prefs.Validate(); err != nil {
		return nil, shared.WrapError("queue", "NewTicket", shared.ErrValidation, "invalid preferences", err)
	}
	return &Ticket{id: id, courseID: courseID, userID: userID, prefs: prefs}, nil
}

// RestoreTicket rebuilds a persisted ticket.
func RestoreTicket(id, courseID, userID string, prefs preference.Preferences, queuedAt time.Time) *Ticket {
	return &Ticket{id: id, courseID: courseID, userID: userID, prefs: prefs, queuedAt: queuedAt}
}

// AssignQueuedAt records the server-side enqueue time. Repositories call it
// exactly once, on insert.
func (t *Ticket) AssignQueuedAt(at time.Time) { t.queuedAt = at }

func (t *Ticket) ID() string                          { return t.id }
func (t *Ticket) CourseID() string                    { return t.courseID }
func (t *Ticket) UserID() string                      { return t.userID }
func (t *Ticket) Kind() matching.Kind                 { return matching.KindIndividual }
func (t *Ticket) Preferences() preference.Preferences { return t.prefs }
func (t *Ticket) QueuedAt() time.Time                 { return t.queuedAt }
func (t *Ticket) Occupancy() int                      { return 1 }
func (t *Ticket) Members() []string                   { return []string{t.userID} }

// ══════════════════════════════════════════════════════════════════════════════
// GROUP TICKET
// ══════════════════════════════════════════════════════════════════════════════

// GroupTicket is a partially filled group's request to grow. Members,
// preferences and capacity are read from the group when the ticket is loaded,
// so the candidate always reflects the group's own snapshot.
type GroupTicket struct {
	id       string
	courseID string
	groupID  string
	members  []string
	prefs    preference.Preferences
	capacity int
	queuedAt time.Time
}

var _ matching.Candidate = (*GroupTicket)(nil)

// NewGroupTicket creates a group ticket for the given group state.
func NewGroupTicket(id, courseID, groupID string, members []string, prefs preference.Preferences, capacity int) (*GroupTicket, error) {
	if id == "" || courseID == "" || groupID == "" {
		return nil, shared.NewDomainError("queue", "NewGroupTicket", shared.ErrEmptyValue, "ticket id, course and group are required")
	}
	if len(members) == 0 {
		return nil, shared.NewDomainError("queue", "NewGroupTicket", shared.ErrValidation, "group has no members")
	}
	if len(members) >= capacity {
		return nil, shared.ErrGroupAlreadyFull
	}
	return RestoreGroupTicket(id, courseID, groupID, members, prefs, capacity, time.Time{}), nil
}

// RestoreGroupTicket rebuilds a persisted group ticket.
func RestoreGroupTicket(id, courseID, groupID string, members []string, prefs preference.Preferences, capacity int, queuedAt time.Time) *GroupTicket {
	m := make([]string, len(members))
	copy(m, members)
	return &GroupTicket{
		id:       id,
		courseID: courseID,
		groupID:  groupID,
		members:  m,
		prefs:    prefs,
		capacity: capacity,
		queuedAt: queuedAt,
	}
}

// AssignQueuedAt records the server-side enqueue time.
func (g *GroupTicket) AssignQueuedAt(at time.Time) { g.queuedAt = at }

func (g *GroupTicket) ID() string                          { return g.id }
func (g *GroupTicket) CourseID() string                    { return g.courseID }
func (g *GroupTicket) GroupID() string                     { return g.groupID }
func (g *GroupTicket) Kind() matching.Kind                 { return matching.KindGroup }
func (g *GroupTicket) Preferences() preference.Preferences { return g.prefs }
func (g *GroupTicket) QueuedAt() time.Time                 { return g.queuedAt }
func (g *GroupTicket) Occupancy() int                      { return len(g.members) }
func (g *GroupTicket) Capacity() int                       { return g.capacity }

// Members returns a copy of the group's member identities.
func (g *GroupTicket) Members() []string {
	out := make([]string, len(g.members))
	copy(out, g.members)
	return out
}

// OpenSeats is the number of members still needed to fill the group.
func (g *GroupTicket) OpenSeats() int {
	if n := g.capacity - len(g.members); n > 0 {
		return n
	}
	return 0
}
