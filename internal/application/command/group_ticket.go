package command

import (
	"context"
	"time"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/group"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/queue"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP TICKET COMMANDS
// A forming group queues itself to grow. The ticket inherits the group's
// preferences and capacity; its member list is read from the group on load.
// ══════════════════════════════════════════════════════════════════════════════

var errNotMember = shared.NewDomainError("queue", "GroupTicket", shared.ErrForbidden, "only group members may manage the group's ticket")

// EnqueueGroupTicketCommand queues an existing group.
type EnqueueGroupTicketCommand struct {
	GroupID     string
	RequestedBy string
}

// Validate validates the command.
func (c EnqueueGroupTicketCommand) Validate() error {
	if err := required("queue", "EnqueueGroupTicket", "group_id", c.GroupID); err != nil {
		return err
	}
	return required("queue", "EnqueueGroupTicket", "requested_by", c.RequestedBy)
}

// EnqueueGroupTicketResult describes the queued group ticket.
type EnqueueGroupTicketResult struct {
	TicketID  string
	CourseID  string
	OpenSeats int
	QueuedAt  time.Time
}

// EnqueueGroupTicketHandler handles EnqueueGroupTicketCommand.
type EnqueueGroupTicketHandler struct {
	deps Deps
}

// NewEnqueueGroupTicketHandler creates a new EnqueueGroupTicketHandler.
func NewEnqueueGroupTicketHandler(d Deps) *EnqueueGroupTicketHandler {
	return &EnqueueGroupTicketHandler{deps: d.withDefaults()}
}

// Handle queues the group. Full groups are rejected, as are groups with a
// member who still holds an individual ticket for the course.
func (h *EnqueueGroupTicketHandler) Handle(ctx context.Context, cmd EnqueueGroupTicketCommand) (*EnqueueGroupTicketResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var ticket *queue.GroupTicket
	err := h.deps.Store.WithinTx(ctx, func(ctx context.Context, r uow.Repositories) error {
		g, err := loadMemberGroup(ctx, r, cmd.GroupID, cmd.RequestedBy)
		if err != nil {
			return err
		}
		if g.IsFull() {
			return shared.ErrGroupAlreadyFull
		}
		for _, userID := range g.MemberIDs() {
			queued, err := r.Tickets.ExistsForIdentity(ctx, userID, g.CourseID())
			if err != nil {
				return err
			}
			if queued {
				return shared.WrapError("queue", "EnqueueGroupTicket", shared.ErrConflict,
					"a member is already queued individually", shared.ErrAlreadyQueued)
			}
		}

		ticket, err = queue.NewGroupTicket(h.deps.NewID(), g.CourseID(), g.ID(),
			g.MemberIDs(), g.Preferences(), g.Capacity())
		if err != nil {
			return err
		}
		return r.GroupTickets.Enqueue(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("group ticket enqueued",
		logger.CourseID(ticket.CourseID()),
		logger.GroupID(ticket.GroupID()),
		logger.TicketID(ticket.ID()))
	h.deps.publish([]shared.Event{
		shared.NewTicketEnqueuedEvent(ticket.ID(), ticket.CourseID(), ticket.GroupID(), string(matching.KindGroup)),
	})

	return &EnqueueGroupTicketResult{
		TicketID:  ticket.ID(),
		CourseID:  ticket.CourseID(),
		OpenSeats: ticket.OpenSeats(),
		QueuedAt:  ticket.QueuedAt(),
	}, nil
}

// WithdrawGroupTicketCommand removes a group from the queue.
type WithdrawGroupTicketCommand struct {
	GroupID     string
	RequestedBy string
}

// Validate validates the command.
func (c WithdrawGroupTicketCommand) Validate() error {
	if err := required("queue", "WithdrawGroupTicket", "group_id", c.GroupID); err != nil {
		return err
	}
	return required("queue", "WithdrawGroupTicket", "requested_by", c.RequestedBy)
}

// WithdrawGroupTicketHandler handles WithdrawGroupTicketCommand.
type WithdrawGroupTicketHandler struct {
	deps Deps
}

// NewWithdrawGroupTicketHandler creates a new WithdrawGroupTicketHandler.
func NewWithdrawGroupTicketHandler(d Deps) *WithdrawGroupTicketHandler {
	return &WithdrawGroupTicketHandler{deps: d.withDefaults()}
}

// Handle dequeues the group's ticket.
func (h *WithdrawGroupTicketHandler) Handle(ctx context.Context, cmd WithdrawGroupTicketCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	var ticket *queue.GroupTicket
	err := h.deps.Store.WithinTx(ctx, func(ctx context.Context, r uow.Repositories) error {
		if _, err := loadMemberGroup(ctx, r, cmd.GroupID, cmd.RequestedBy); err != nil {
			return err
		}
		var err error
		ticket, err = r.GroupTickets.GetByGroup(ctx, cmd.GroupID)
		if err != nil {
			return err
		}
		_, err = r.GroupTickets.Dequeue(ctx, ticket.ID())
		return err
	})
	if err != nil {
		return err
	}

	h.deps.Logger.Info("group ticket withdrawn",
		logger.CourseID(ticket.CourseID()),
		logger.GroupID(ticket.GroupID()),
		logger.TicketID(ticket.ID()))
	h.deps.publish([]shared.Event{
		shared.NewTicketWithdrawnEvent(ticket.ID(), ticket.CourseID(), ticket.GroupID()),
	})
	return nil
}

func loadMemberGroup(ctx context.Context, r uow.Repositories, groupID, userID string) (*group.Group, error) {
	g, err := r.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.HasMember(userID) {
		return nil, errNotMember
	}
	return g, nil
}
