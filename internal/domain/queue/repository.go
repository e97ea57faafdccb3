package queue

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// TicketRepository persists individual tickets.
type TicketRepository interface {
	// Enqueue inserts the ticket and assigns its QueuedAt.
	// Returns shared.ErrAlreadyQueued if the user already holds a ticket
	// for the course.
	Enqueue(ctx context.Context, t *Ticket) error

	// Dequeue removes tickets by id and returns how many rows were removed.
	// Unknown ids are ignored.
	Dequeue(ctx context.Context, ids ...string) (int, error)

	// GetByID returns shared.ErrTicketNotFound when absent.
	GetByID(ctx context.Context, id string) (*Ticket, error)

	// ListByCourse returns the course's tickets ordered by QueuedAt, then id.
	ListByCourse(ctx context.Context, courseID string) ([]*Ticket, error)

	// ExistsForIdentity reports whether the user holds a ticket for the course.
	ExistsForIdentity(ctx context.Context, userID, courseID string) (bool, error)
}

// GroupTicketRepository persists group tickets.
type GroupTicketRepository interface {
	// Enqueue inserts the group ticket and assigns its QueuedAt.
	// Returns shared.ErrGroupAlreadyQueue if the group is already queued.
	Enqueue(ctx context.Context, t *GroupTicket) error

	// Dequeue removes group tickets by id. Unknown ids are ignored.
	Dequeue(ctx context.Context, ids ...string) (int, error)

	// GetByID returns shared.ErrGroupTicketNotFound when absent.
	GetByID(ctx context.Context, id string) (*GroupTicket, error)

	// GetByGroup returns shared.ErrGroupTicketNotFound when the group is not queued.
	GetByGroup(ctx context.Context, groupID string) (*GroupTicket, error)

	// ListByCourse returns the course's group tickets ordered by QueuedAt, then id,
	// with members and preferences hydrated from the group.
	ListByCourse(ctx context.Context, courseID string) ([]*GroupTicket, error)

	// ExistsForIdentity reports whether the group is queued for the course.
	ExistsForIdentity(ctx context.Context, groupID, courseID string) (bool, error)
}
