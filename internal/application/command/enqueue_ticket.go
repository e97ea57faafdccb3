package command

import (
	"context"
	"time"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/queue"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENQUEUE TICKET COMMAND
// Puts a student in a course's matchmaking queue. The ticket carries a
// preference snapshot: the user's global preferences merged with any
// course-level overrides given at enqueue time.
// ══════════════════════════════════════════════════════════════════════════════

// EnqueueTicketCommand contains the data to queue a student.
type EnqueueTicketCommand struct {
	CourseID string
	UserID   string

	// Overrides replace the matching fields of the user's global preferences.
	Overrides preference.Preferences
}

// Validate validates the command.
func (c EnqueueTicketCommand) Validate() error {
	if err := required("queue", "EnqueueTicket", "course_id", c.CourseID); err != nil {
		return err
	}
	if err := required("queue", "EnqueueTicket", "user_id", c.UserID); err != nil {
		return err
	}
	if err := c.Overrides.Validate(); err != nil {
		return shared.WrapError("queue", "EnqueueTicket", shared.ErrValidation, "invalid preference overrides", err)
	}
	return nil
}

// EnqueueTicketResult describes the queued ticket.
type EnqueueTicketResult struct {
	TicketID    string
	QueuedAt    time.Time
	Preferences preference.Preferences
}

// EnqueueTicketHandler handles EnqueueTicketCommand.
type EnqueueTicketHandler struct {
	deps Deps
}

// NewEnqueueTicketHandler creates a new EnqueueTicketHandler.
func NewEnqueueTicketHandler(d Deps) *EnqueueTicketHandler {
	return &EnqueueTicketHandler{deps: d.withDefaults()}
}

// Handle queues the user. It fails with a conflict when the user already
// holds a ticket for the course or belongs to one of its groups, and with
// forbidden when the user is not on the course roster.
func (h *EnqueueTicketHandler) Handle(ctx context.Context, cmd EnqueueTicketCommand) (*EnqueueTicketResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var ticket *queue.Ticket
	err := h.deps.Store.WithinTx(ctx, func(ctx context.Context, r uow.Repositories) error {
		c, err := r.Courses.GetCourse(ctx, cmd.CourseID)
		if err != nil {
			return err
		}
		if !c.IsEnrolled(cmd.UserID) {
			return shared.ErrNotEnrolled
		}
		user, err := r.Users.GetUser(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		queued, err := r.Tickets.ExistsForIdentity(ctx, cmd.UserID, cmd.CourseID)
		if err != nil {
			return err
		}
		if queued {
			return shared.ErrAlreadyQueued
		}
		if err := ensureNotGrouped(ctx, r, cmd.CourseID, cmd.UserID); err != nil {
			return err
		}

		ticket, err = queue.NewTicket(h.deps.NewID(), cmd.CourseID, cmd.UserID,
			user.Preferences.Merge(cmd.Overrides))
		if err != nil {
			return err
		}
		return r.Tickets.Enqueue(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("ticket enqueued",
		logger.CourseID(cmd.CourseID),
		logger.UserID(cmd.UserID),
		logger.TicketID(ticket.ID()))
	h.deps.publish([]shared.Event{
		shared.NewTicketEnqueuedEvent(ticket.ID(), cmd.CourseID, cmd.UserID, string(matching.KindIndividual)),
	})

	return &EnqueueTicketResult{
		TicketID:    ticket.ID(),
		QueuedAt:    ticket.QueuedAt(),
		Preferences: ticket.Preferences(),
	}, nil
}

// ensureNotGrouped rejects users who already belong to a group in the course.
// Queued groups are covered too since their members are group members.
func ensureNotGrouped(ctx context.Context, r uow.Repositories, courseID, userID string) error {
	_, err := r.Groups.FindByMember(ctx, courseID, userID)
	switch {
	case err == nil:
		return shared.ErrAlreadyInCourseGroup
	case shared.IsNotFound(err):
		return nil
	default:
		return err
	}
}
