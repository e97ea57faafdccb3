package group

import "context"

// Repository persists groups and their memberships.
type Repository interface {
	// Create inserts a new group with its current members.
	// Returns shared.ErrMemberInOtherGrp if any member already belongs to a
	// group in the same course.
	Create(ctx context.Context, g *Group) error

	// GetByID returns shared.ErrGroupNotFound when absent.
	GetByID(ctx context.Context, id string) (*Group, error)

	// Save writes membership and the completion latch. It fails with
	// shared.ErrConcurrentModification if the group changed since it was
	// loaded, and with shared.ErrMemberInOtherGrp on a membership clash.
	Save(ctx context.Context, g *Group) error

	// Delete removes the group, its members and any group ticket.
	// Deleting an absent group returns shared.ErrGroupNotFound.
	Delete(ctx context.Context, id string) error

	// FindByMember returns the user's group in the course, or
	// shared.ErrGroupNotFound.
	FindByMember(ctx context.Context, courseID, userID string) (*Group, error)

	// ListByCourse returns all groups of a course, oldest first.
	ListByCourse(ctx context.Context, courseID string) ([]*Group, error)
}
