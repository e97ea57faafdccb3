// Package group contains the study group aggregate.
//
// A group moves through three states:
//
//	Forming   members < capacity, IsComplete false
//	Full      IsComplete latched true; membership may later drop again
//	Disbanded last member left; the group is deleted
//
// The completion latch never resets. Reaching capacity raises GroupFilled
// only at the first transition.
package group

import (
	"time"

	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// Member is one user's membership.
type Member struct {
	UserID   string
	JoinedAt time.Time
}

// Group is a study group for one course.
type Group struct {
	shared.EventRecorder

	id        string
	courseID  string
	members   []Member
	prefs     preference.Preferences
	capacity  int
	complete  bool
	disbanded bool
	version   int
	createdAt time.Time
	updatedAt time.Time
}

// NewGroup creates an empty forming group.
func NewGroup(id, courseID string, capacity int, prefs preference.Preferences, now time.Time) (*Group, error) {
	if id == "" || courseID == "" {
		return nil, shared.NewDomainError("group", "NewGroup", shared.ErrEmptyValue, "group id and course are required")
	}
	if capacity < 2 {
		return nil, shared.ErrInvalidCapacity
	}
	return &Group{
		id:        id,
		courseID:  courseID,
		prefs:     prefs,
		capacity:  capacity,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Snapshot is the persisted form of a group.
type Snapshot struct {
	ID          string
	CourseID    string
	Members     []Member
	Preferences preference.Preferences
	Capacity    int
	IsComplete  bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Restore rebuilds a group from storage.
func Restore(s Snapshot) *Group {
	members := make([]Member, len(s.Members))
	copy(members, s.Members)
	return &Group{
		id:        s.ID,
		courseID:  s.CourseID,
		members:   members,
		prefs:     s.Preferences,
		capacity:  s.Capacity,
		complete:  s.IsComplete,
		version:   s.Version,
		createdAt: s.CreatedAt,
		updatedAt: s.UpdatedAt,
	}
}

// Snapshot returns the persisted form.
func (g *Group) Snapshot() Snapshot {
	members := make([]Member, len(g.members))
	copy(members, g.members)
	return Snapshot{
		ID:          g.id,
		CourseID:    g.courseID,
		Members:     members,
		Preferences: g.prefs,
		Capacity:    g.capacity,
		IsComplete:  g.complete,
		Version:     g.version,
		CreatedAt:   g.createdAt,
		UpdatedAt:   g.updatedAt,
	}
}

func (g *Group) ID() string                          { return g.id }
func (g *Group) CourseID() string                    { return g.courseID }
func (g *Group) Capacity() int                       { return g.capacity }
func (g *Group) Preferences() preference.Preferences { return g.prefs }
func (g *Group) IsComplete() bool                    { return g.complete }
func (g *Group) IsDisbanded() bool                   { return g.disbanded }
func (g *Group) Size() int                           { return len(g.members) }
func (g *Group) IsFull() bool                        { return len(g.members) >= g.capacity }
func (g *Group) Version() int                        { return g.version }
func (g *Group) CreatedAt() time.Time                { return g.createdAt }
func (g *Group) UpdatedAt() time.Time                { return g.updatedAt }

// AssignVersion records the storage version after a successful write.
// Repositories use it for optimistic concurrency.
func (g *Group) AssignVersion(v int) { g.version = v }

// OpenSeats is capacity minus current size, never negative.
func (g *Group) OpenSeats() int {
	if n := g.capacity - len(g.members); n > 0 {
		return n
	}
	return 0
}

// MemberIDs returns member identities in join order.
func (g *Group) MemberIDs() []string {
	out := make([]string, len(g.members))
	for i, m := range g.members {
		out[i] = m.UserID
	}
	return out
}

// HasMember reports whether userID is in the group.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// CanAdmit validates a batch of new members without mutating the group.
func (g *Group) CanAdmit(userIDs []string) error {
	if g.disbanded {
		return shared.ErrGroupDisbanded
	}
	if len(g.members)+len(userIDs) > g.capacity {
		return shared.ErrGroupFull
	}
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || g.HasMember(id) {
			return shared.ErrDuplicateMember
		}
		seen[id] = struct{}{}
	}
	return nil
}

// AddMember appends a member. When the group reaches capacity for the first
// time the completion latch is set and GroupFilled is recorded.
func (g *Group) AddMember(userID string, now time.Time) error {
	if err := g.CanAdmit([]string{userID}); err != nil {
		return err
	}
	g.members = append(g.members, Member{UserID: userID, JoinedAt: now})
	g.updatedAt = now
	g.Record(shared.NewGroupMemberAddedEvent(g.id, userID))

	if !g.complete && len(g.members) == g.capacity {
		g.complete = true
		g.Record(shared.NewGroupFilledEvent(g.id, g.courseID))
	}
	return nil
}

// RemoveMember drops a member. Removing the last member disbands the group.
func (g *Group) RemoveMember(userID string, now time.Time) error {
	if g.disbanded {
		return shared.ErrGroupDisbanded
	}
	idx := -1
	for i, m := range g.members {
		if m.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return shared.ErrNotAGroupMember
	}
	g.members = append(g.members[:idx], g.members[idx+1:]...)
	g.updatedAt = now
	g.Record(shared.NewGroupMemberLeftEvent(g.id, userID))

	if len(g.members) == 0 {
		g.disbanded = true
		g.Record(shared.NewGroupDisbandedEvent(g.id, g.courseID, []string{userID}))
	}
	return nil
}

// Disband removes every member at once.
func (g *Group) Disband(now time.Time) error {
	if g.disbanded {
		return shared.ErrGroupDisbanded
	}
	former := g.MemberIDs()
	g.members = nil
	g.disbanded = true
	g.updatedAt = now
	g.Record(shared.NewGroupDisbandedEvent(g.id, g.courseID, former))
	return nil
}
